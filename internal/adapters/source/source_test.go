package source

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"

	"github.com/mikey/mailgraph/internal/address"
	"github.com/mikey/mailgraph/internal/utils"
)

const testMbox = `From alice@example.org Mon Nov  4 09:00:00 2019
From: Alice Example <Alice@Example.org>
To: quic@ietf.org
Message-ID: <m1@example.org>
Date: Mon, 4 Nov 2019 09:00:00 +0000
Subject: Transport parameters
List-Id: QUIC WG <quic.ietf.org>

First message.

From bob@example.org Mon Nov  4 10:00:00 2019
From: bob at example.org (Bob Builder)
To: quic@ietf.org, Alice <alice@example.org>
Cc: chairs@ietf.org
Message-ID: <m2@example.org>
In-Reply-To: <m1@example.org>
References: <m0@example.org> <m1@example.org>
Date: Mon, 4 Nov 2019 10:00:00 +0000
Subject: =?utf-8?q?Re=3A_Transport_param=C3=A8ters?=
List-Id: QUIC WG <quic.ietf.org>
MIME-Version: 1.0
Content-Type: multipart/alternative; boundary="b1"

--b1
Content-Type: text/html; charset=utf-8

<p>html reply</p>
--b1
Content-Type: text/plain; charset=utf-8

plain reply
--b1--

From carol@example.org Mon Nov  4 11:00:00 2019
From: "Carol" <carol@example.org>
Message-ID: <m3@example.org>
References: <m1@example.org> <m2@example.org>
Date: Mon, 4 Nov 2019 11:00:00 +0000
Subject: Re: Transport parameters

Another reply.
`

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestMboxSource_Read(t *testing.T) {
	path := writeFile(t, t.TempDir(), "quic.mbox", testMbox)
	src := NewMboxSource(Options{Paths: []string{path}}, nil, zaptest.NewLogger(t))

	msgs, err := src.Read(context.Background())
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if len(msgs) != 3 {
		t.Fatalf("Read() = %d messages, want 3", len(msgs))
	}

	m1, m2, m3 := msgs[0], msgs[1], msgs[2]
	if m1.MessageID != "m1@example.org" || m1.From != "Alice@Example.org" || m1.FromName != "Alice Example" {
		t.Errorf("m1 header = %q %q %q", m1.MessageID, m1.From, m1.FromName)
	}
	if !m1.Date.Equal(time.Date(2019, 11, 4, 9, 0, 0, 0, time.UTC)) {
		t.Errorf("m1 Date = %v", m1.Date)
	}
	if m1.MailingList != "quic" {
		t.Errorf("m1 MailingList = %q, want quic", m1.MailingList)
	}
	if !strings.Contains(m1.Body, "First message.") {
		t.Errorf("m1 Body = %q", m1.Body)
	}

	if m2.From != "bob at example.org" || m2.FromName != "Bob Builder" {
		t.Errorf("obfuscated From = %q name %q", m2.From, m2.FromName)
	}
	if want := []string{"m1@example.org", "m0@example.org"}; !reflect.DeepEqual(m2.InReplyTo, want) {
		t.Errorf("m2 InReplyTo = %v, want %v", m2.InReplyTo, want)
	}
	if want := []string{"quic@ietf.org", "alice@example.org"}; !reflect.DeepEqual(m2.To, want) {
		t.Errorf("m2 To = %v, want %v", m2.To, want)
	}
	if len(m2.Cc) != 1 || m2.Cc[0] != "chairs@ietf.org" {
		t.Errorf("m2 Cc = %v", m2.Cc)
	}
	if m2.Subject != "Re: Transport paramèters" {
		t.Errorf("m2 Subject = %q", m2.Subject)
	}
	if strings.TrimSpace(m2.Body) != "plain reply" {
		t.Errorf("m2 Body = %q, want the text/plain part", m2.Body)
	}

	if want := []string{"m2@example.org", "m1@example.org"}; !reflect.DeepEqual(m3.InReplyTo, want) {
		t.Errorf("m3 InReplyTo = %v, want %v", m3.InReplyTo, want)
	}
	if m3.MailingList != "" {
		t.Errorf("m3 MailingList = %q, want empty", m3.MailingList)
	}
}

func TestMboxSource_OptionsOverride(t *testing.T) {
	path := writeFile(t, t.TempDir(), "quic.mbox", testMbox)
	src := NewMboxSource(Options{
		Paths:       []string{path},
		MailingList: "tls",
		MaxBodySize: 5,
	}, utils.NewTextProcessor(nil), zap.NewNop())

	msgs, err := src.Read(context.Background())
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	for _, m := range msgs {
		if m.MailingList != "tls" {
			t.Errorf("%s MailingList = %q, want tls", m.MessageID, m.MailingList)
		}
		if len(m.Body) > 5+len(utils.TruncatedMarker) {
			t.Errorf("%s Body not capped: %q", m.MessageID, m.Body)
		}
	}
}

func TestMboxSource_SkipsUnparseable(t *testing.T) {
	broken := "From x Mon Nov  4 09:00:00 2019\nthis is not a header line\n\n" + testMbox
	path := writeFile(t, t.TempDir(), "broken.mbox", broken)

	obsCore, logs := observer.New(zap.WarnLevel)
	src := NewMboxSource(Options{Paths: []string{path}}, nil, zap.New(obsCore))
	msgs, err := src.Read(context.Background())
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if len(msgs) != 3 {
		t.Errorf("Read() = %d messages, want 3", len(msgs))
	}
	if logs.FilterMessage("Skipping unparseable message").Len() != 1 {
		t.Errorf("expected one skip warning, got %v", logs.All())
	}
}

func TestMboxSource_Errors(t *testing.T) {
	src := NewMboxSource(Options{Paths: []string{filepath.Join(t.TempDir(), "missing.mbox")}}, nil, nil)
	if _, err := src.Read(context.Background()); err == nil {
		t.Error("Read() of a missing file succeeded")
	}

	path := writeFile(t, t.TempDir(), "quic.mbox", testMbox)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	src = NewMboxSource(Options{Paths: []string{path}}, nil, nil)
	if _, err := src.Read(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Read() error = %v, want context.Canceled", err)
	}
}

func TestJSONSource_Read(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.json", `[
  {"message_id": "<m1@x>", "from": "a@x.org", "from_name": "\"Alice\"", "to": "quic@ietf.org, b@x.org",
   "subject": "hello", "date": "2019-11-04T09:00:00+00:00", "body": "hi", "mailing_list": "quic",
   "person_uri": "/person/1"},
  {"message_id": "m2@x", "from": "Bob <b@x.org>", "in_reply_to": "m1@x", "date": "2019-11-04 10:00:00",
   "list_name": "tls", "cc": ["c@x.org"]},
  "not an object"
]`)
	sub := filepath.Join(dir, "more")
	if err := os.Mkdir(sub, 0o755); err != nil {
		t.Fatal(err)
	}
	writeFile(t, sub, "b.json", `{"message_id": "m3", "from": "c@x.org", "in_reply_to": ["m2@x", "m1@x"],
  "date": "Mon, 4 Nov 2019 11:00:00 +0000"}`)
	writeFile(t, sub, "notes.txt", "ignored")

	src := NewJSONSource(Options{Paths: []string{dir}}, nil, zaptest.NewLogger(t))
	msgs, err := src.Read(context.Background())
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if len(msgs) != 3 {
		t.Fatalf("Read() = %d messages, want 3", len(msgs))
	}

	m1, m2, m3 := msgs[0], msgs[1], msgs[2]
	if m1.FromName != "Alice" || m1.SenderDirectoryRef != "/person/1" || m1.MailingList != "quic" {
		t.Errorf("m1 = %+v", m1)
	}
	if want := []string{"quic@ietf.org", "b@x.org"}; !reflect.DeepEqual(m1.To, want) {
		t.Errorf("m1 To = %v, want %v", m1.To, want)
	}
	if m2.From != "b@x.org" || m2.FromName != "Bob" || m2.MailingList != "tls" {
		t.Errorf("m2 sender/list = %q %q %q", m2.From, m2.FromName, m2.MailingList)
	}
	if !reflect.DeepEqual(m2.InReplyTo, []string{"m1@x"}) || !reflect.DeepEqual(m2.Cc, []string{"c@x.org"}) {
		t.Errorf("m2 refs=%v cc=%v", m2.InReplyTo, m2.Cc)
	}
	if !m2.Date.Equal(time.Date(2019, 11, 4, 10, 0, 0, 0, time.UTC)) {
		t.Errorf("m2 Date = %v", m2.Date)
	}
	if !reflect.DeepEqual(m3.InReplyTo, []string{"m2@x", "m1@x"}) {
		t.Errorf("m3 InReplyTo = %v", m3.InReplyTo)
	}
	if !m3.Date.Equal(time.Date(2019, 11, 4, 11, 0, 0, 0, time.UTC)) {
		t.Errorf("m3 Date = %v", m3.Date)
	}
}

func TestJSONSource_SingleFileAndOverride(t *testing.T) {
	path := writeFile(t, t.TempDir(), "one.json", `{"message_id": "m1", "from": "a@x.org", "mailing_list": "quic", "body": "0123456789"}`)
	src := NewJSONSource(Options{Paths: []string{path}, MailingList: "override", MaxBodySize: 4}, nil, nil)

	msgs, err := src.Read(context.Background())
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if len(msgs) != 1 || msgs[0].MailingList != "override" {
		t.Fatalf("Read() = %+v", msgs)
	}
	if msgs[0].Body != "0123"+utils.TruncatedMarker {
		t.Errorf("Body = %q", msgs[0].Body)
	}
}

func TestJSONSource_MissingPath(t *testing.T) {
	src := NewJSONSource(Options{Paths: []string{filepath.Join(t.TempDir(), "nope")}}, nil, nil)
	if _, err := src.Read(context.Background()); err == nil {
		t.Error("Read() of a missing path succeeded")
	}
}

func TestParseFrom(t *testing.T) {
	tests := []struct {
		raw, addr, name string
	}{
		{"alice at example.org (Alice)", "alice at example.org", "Alice"},
		{"Alice <alice at example.org>", "alice at example.org", "Alice"},
		{"alice@example.org", "alice@example.org", ""},
		{"j.doe (at) example (dot) com", "j.doe (at) example (dot) com", ""},
		{"j.doe (at) example (dot) com (John Doe)", "j.doe (at) example (dot) com", "John Doe"},
		{"  ", "", ""},
	}
	for _, tt := range tests {
		addr, name := parseFrom(tt.raw)
		if addr != tt.addr || name != tt.name {
			t.Errorf("parseFrom(%q) = %q, %q; want %q, %q", tt.raw, addr, name, tt.addr, tt.name)
		}
	}
}

func TestListName(t *testing.T) {
	tests := map[string]string{
		"QUIC WG <quic.ietf.org>": "quic",
		"<TLS.ietf.org>":          "tls",
		"plain":                   "plain",
		"":                        "",
	}
	for in, want := range tests {
		if got := listName(in); got != want {
			t.Errorf("listName(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestSources_ParenthesisedObfuscationKept(t *testing.T) {
	dir := t.TempDir()
	mboxPath := writeFile(t, dir, "obfuscated.mbox", `From jdoe Mon Nov  4 09:00:00 2019
From: j.doe (at) example (dot) com
Message-ID: <o1@example.com>
Date: Mon, 4 Nov 2019 09:00:00 +0000
Subject: obfuscated

body
`)
	jsonPath := writeFile(t, dir, "obfuscated.json", `[
  {"message_id": "o2", "from": "j.doe (at) example (dot) com"},
  {"message_id": "o3", "from": "j.doe (at) example (dot) com (John Doe)"}
]`)

	mboxMsgs, err := NewMboxSource(Options{Paths: []string{mboxPath}}, nil, zaptest.NewLogger(t)).Read(context.Background())
	if err != nil {
		t.Fatalf("mbox Read() error = %v", err)
	}
	jsonMsgs, err := NewJSONSource(Options{Paths: []string{jsonPath}}, nil, zaptest.NewLogger(t)).Read(context.Background())
	if err != nil {
		t.Fatalf("json Read() error = %v", err)
	}

	msgs := append(mboxMsgs, jsonMsgs...)
	if len(msgs) != 3 {
		t.Fatalf("Read() = %d messages, want 3", len(msgs))
	}
	for _, m := range msgs {
		if got := address.Normalize(m.From); got != "j.doe@example.com" {
			t.Errorf("%s: From %q normalizes to %q, want j.doe@example.com", m.MessageID, m.From, got)
		}
	}
	if msgs[2].FromName != "John Doe" {
		t.Errorf("o3 FromName = %q, want John Doe", msgs[2].FromName)
	}
}
