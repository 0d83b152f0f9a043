package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	mboxlib "github.com/emersion/go-mbox"
	"github.com/emersion/go-message"
	_ "github.com/emersion/go-message/charset"
	"github.com/emersion/go-message/mail"
	"go.uber.org/zap"

	"github.com/mikey/mailgraph/internal/core"
	"github.com/mikey/mailgraph/internal/utils"
)

// Options configures the archive sources
type Options struct {
	// Paths lists the files (or, for JSON, directories) to read
	Paths []string
	// MailingList overrides the list name found in the messages
	MailingList string
	// MaxBodySize caps stored bodies in bytes; zero keeps them whole
	MaxBodySize int
}

// MboxSource reads messages from mbox archives
type MboxSource struct {
	opts   Options
	text   *utils.TextProcessor
	logger *zap.Logger
}

// NewMboxSource creates a new mbox source
func NewMboxSource(opts Options, text *utils.TextProcessor, logger *zap.Logger) *MboxSource {
	if logger == nil {
		logger = zap.NewNop()
	}
	if text == nil {
		text = utils.NewTextProcessor(logger)
	}
	return &MboxSource{opts: opts, text: text, logger: logger}
}

// Read parses every configured archive in order
func (s *MboxSource) Read(ctx context.Context) ([]core.RawMessage, error) {
	var out []core.RawMessage
	for _, path := range s.opts.Paths {
		msgs, err := s.readFile(ctx, path)
		if err != nil {
			return nil, err
		}
		out = append(out, msgs...)
	}
	return out, nil
}

func (s *MboxSource) readFile(ctx context.Context, path string) ([]core.RawMessage, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open mbox: %w", err)
	}
	defer f.Close()

	msgs, err := s.readFrom(ctx, f, path)
	if err != nil {
		return nil, fmt.Errorf("read mbox %s: %w", path, err)
	}
	s.logger.Info("Read mbox archive",
		zap.String("path", path),
		zap.Int("messages", len(msgs)))
	return msgs, nil
}

func (s *MboxSource) readFrom(ctx context.Context, r io.Reader, path string) ([]core.RawMessage, error) {
	reader := mboxlib.NewReader(r)
	var out []core.RawMessage
	for idx := 0; ; idx++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		msgReader, err := reader.NextMessage()
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return nil, fmt.Errorf("message %d: %w", idx, err)
		}

		msg, err := s.parse(msgReader)
		if err != nil {
			s.logger.Warn("Skipping unparseable message",
				zap.String("path", path),
				zap.Int("index", idx),
				zap.Error(err))
			continue
		}
		out = append(out, msg)
	}
}

func (s *MboxSource) parse(r io.Reader) (core.RawMessage, error) {
	mr, err := mail.CreateReader(r)
	if err != nil && !message.IsUnknownCharset(err) {
		return core.RawMessage{}, err
	}
	defer mr.Close()

	h := &mr.Header
	msg := core.RawMessage{
		To: addressList(h, "To"),
		Cc: addressList(h, "Cc"),
	}

	msg.From, msg.FromName = s.sender(h)
	msg.FromName = s.text.CleanName(msg.FromName)

	if id, err := h.MessageID(); err == nil {
		msg.MessageID = id
	}
	inReplyTo, _ := h.MsgIDList("In-Reply-To")
	references, _ := h.MsgIDList("References")
	msg.InReplyTo = replyRefs(inReplyTo, references)

	if date, err := h.Date(); err == nil {
		msg.Date = date.UTC()
	}
	if subject, err := h.Subject(); err == nil {
		msg.Subject = s.text.SanitizeUTF8(subject)
	} else {
		msg.Subject = s.text.SanitizeUTF8(h.Get("Subject"))
	}

	msg.MailingList = s.opts.MailingList
	if msg.MailingList == "" {
		msg.MailingList = listName(h.Get("List-Id"))
	}

	body, err := s.body(mr)
	if err != nil {
		s.logger.Debug("Body unreadable, keeping headers",
			zap.String("message_id", msg.MessageID),
			zap.Error(err))
	}
	msg.Body = s.text.ProcessText(body, s.opts.MaxBodySize)
	return msg, nil
}

// sender prefers the parsed From address and falls back to the raw header
func (s *MboxSource) sender(h *mail.Header) (string, string) {
	if list, err := h.AddressList("From"); err == nil && len(list) > 0 {
		return list[0].Address, list[0].Name
	}
	raw, err := h.Text("From")
	if err != nil {
		raw = h.Get("From")
	}
	return parseFrom(raw)
}

// body returns the first inline text/plain part
func (s *MboxSource) body(mr *mail.Reader) (string, error) {
	for {
		p, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			return "", nil
		}
		if err != nil && !message.IsUnknownCharset(err) {
			return "", err
		}
		inline, ok := p.Header.(*mail.InlineHeader)
		if !ok {
			continue
		}
		// a missing Content-Type means text/plain
		ct, _, err := inline.ContentType()
		if err != nil {
			ct, _, _ = strings.Cut(inline.Get("Content-Type"), ";")
			ct = strings.TrimSpace(ct)
		}
		if ct != "" && !strings.EqualFold(ct, "text/plain") {
			continue
		}

		body := p.Body
		if s.opts.MaxBodySize > 0 {
			body = io.LimitReader(body, int64(s.opts.MaxBodySize)+1)
		}
		b, err := io.ReadAll(body)
		if err != nil {
			return "", err
		}
		return string(b), nil
	}
}

func addressList(h *mail.Header, key string) []string {
	list, err := h.AddressList(key)
	if err != nil {
		if raw := h.Get(key); raw != "" {
			return splitAddresses(raw)
		}
		return nil
	}
	out := make([]string, 0, len(list))
	for _, a := range list {
		out = append(out, a.Address)
	}
	return out
}
