package source

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"net/mail"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/mikey/mailgraph/internal/core"
	"github.com/mikey/mailgraph/internal/utils"
)

// stringList accepts either a JSON string or a list of strings
type stringList []string

func (l *stringList) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*l = nil
		return nil
	}
	if len(data) > 0 && data[0] == '[' {
		var list []string
		if err := json.Unmarshal(data, &list); err != nil {
			return err
		}
		*l = list
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if s == "" {
		*l = nil
	} else {
		*l = stringList{s}
	}
	return nil
}

// recipients flattens entries that may themselves be comma separated
func (l stringList) recipients() []string {
	var out []string
	for _, s := range l {
		out = append(out, splitAddresses(s)...)
	}
	return out
}

// jsonMessage is one record of a normalized archive export
type jsonMessage struct {
	MessageID   string     `json:"message_id"`
	From        string     `json:"from"`
	FromName    string     `json:"from_name"`
	To          stringList `json:"to"`
	Cc          stringList `json:"cc"`
	Subject     string     `json:"subject"`
	Date        string     `json:"date"`
	Body        string     `json:"body"`
	MailingList string     `json:"mailing_list"`
	ListName    string     `json:"list_name"`
	InReplyTo   stringList `json:"in_reply_to"`
	References  stringList `json:"references"`
	PersonURI   string     `json:"person_uri"`
}

var dateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// parseDate accepts ISO 8601 variants and RFC 5322 dates. Zone-less
// values are taken as UTC
func parseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, nil
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	if t, err := mail.ParseDate(s); err == nil {
		return t.UTC(), nil
	}
	return time.Time{}, fmt.Errorf("unrecognised date %q", s)
}

// JSONSource reads the normalized JSON export: a file holding a list of
// messages or a single message, or a directory of such files
type JSONSource struct {
	opts   Options
	text   *utils.TextProcessor
	logger *zap.Logger
}

// NewJSONSource creates a new JSON source
func NewJSONSource(opts Options, text *utils.TextProcessor, logger *zap.Logger) *JSONSource {
	if logger == nil {
		logger = zap.NewNop()
	}
	if text == nil {
		text = utils.NewTextProcessor(logger)
	}
	return &JSONSource{opts: opts, text: text, logger: logger}
}

// Read loads every configured file, descending into directories
func (s *JSONSource) Read(ctx context.Context) ([]core.RawMessage, error) {
	files, err := s.files()
	if err != nil {
		return nil, err
	}

	var out []core.RawMessage
	for _, path := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		msgs, err := s.readFile(path)
		if err != nil {
			return nil, err
		}
		out = append(out, msgs...)
	}
	return out, nil
}

func (s *JSONSource) files() ([]string, error) {
	var files []string
	for _, root := range s.opts.Paths {
		info, err := os.Stat(root)
		if err != nil {
			return nil, fmt.Errorf("stat %s: %w", root, err)
		}
		if !info.IsDir() {
			files = append(files, root)
			continue
		}
		err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if !d.IsDir() && strings.EqualFold(filepath.Ext(path), ".json") {
				files = append(files, path)
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("walk %s: %w", root, err)
		}
	}
	return files, nil
}

func (s *JSONSource) readFile(path string) ([]core.RawMessage, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read json archive: %w", err)
	}

	var records []json.RawMessage
	trimmed := bytes.TrimSpace(data)
	switch {
	case len(trimmed) == 0:
		return nil, nil
	case trimmed[0] == '[':
		if err := json.Unmarshal(trimmed, &records); err != nil {
			return nil, fmt.Errorf("decode %s: %w", path, err)
		}
	default:
		records = []json.RawMessage{trimmed}
	}

	out := make([]core.RawMessage, 0, len(records))
	for idx, rec := range records {
		var jm jsonMessage
		if err := json.Unmarshal(rec, &jm); err != nil {
			s.logger.Warn("Skipping undecodable record",
				zap.String("path", path),
				zap.Int("index", idx),
				zap.Error(err))
			continue
		}
		out = append(out, s.convert(jm, path))
	}

	s.logger.Info("Read json archive",
		zap.String("path", path),
		zap.Int("messages", len(out)))
	return out, nil
}

func (s *JSONSource) convert(jm jsonMessage, path string) core.RawMessage {
	from, name := jm.From, jm.FromName
	if strings.ContainsAny(from, "<(") {
		var parsed string
		from, parsed = parseFrom(from)
		if name == "" {
			name = parsed
		}
	}

	date, err := parseDate(jm.Date)
	if err != nil {
		s.logger.Debug("Ignoring bad date",
			zap.String("path", path),
			zap.String("message_id", jm.MessageID),
			zap.Error(err))
	}

	list := s.opts.MailingList
	if list == "" {
		list = jm.MailingList
	}
	if list == "" {
		list = jm.ListName
	}

	return core.RawMessage{
		MessageID:          jm.MessageID,
		From:               from,
		FromName:           s.text.CleanName(name),
		To:                 jm.To.recipients(),
		Cc:                 jm.Cc.recipients(),
		Subject:            s.text.SanitizeUTF8(jm.Subject),
		Body:               s.text.ProcessText(jm.Body, s.opts.MaxBodySize),
		Date:               date,
		InReplyTo:          replyRefs(jm.InReplyTo, jm.References),
		MailingList:        strings.TrimSpace(list),
		SenderDirectoryRef: strings.TrimSpace(jm.PersonURI),
	}
}
