package docview

import (
	"encoding/base64"
	"io"
	"mime"
	"mime/multipart"
	"mime/quotedprintable"
	"net/mail"
	"os"
	"regexp"
	"strings"

	"github.com/rotisserie/eris"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/transform"
)

// Email is the flattened view of an .eml intake document.
type Email struct {
	From    string `json:"from"`
	To      string `json:"to"`
	Subject string `json:"subject"`
	Date    string `json:"date"`
	Body    string `json:"body"`
}

// ParseEmail reads an .eml file and flattens its body to text. A plain-text
// part is preferred; an HTML part is tag-stripped as a fallback.
func ParseEmail(path string) (*Email, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "docview: open email %s", path)
	}
	defer f.Close() //nolint:errcheck

	msg, err := mail.ReadMessage(f)
	if err != nil {
		return nil, eris.Wrapf(err, "docview: parse email %s", path)
	}

	body, err := messageBody(msg)
	if err != nil {
		return nil, err
	}

	return &Email{
		From:    msg.Header.Get("From"),
		To:      msg.Header.Get("To"),
		Subject: decodeHeader(msg.Header.Get("Subject")),
		Date:    msg.Header.Get("Date"),
		Body:    body,
	}, nil
}

// EmailText returns the email as one text block (headers then body), the
// form the extraction pipeline feeds to the formatter.
func EmailText(path string) (string, error) {
	email, err := ParseEmail(path)
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	sb.WriteString("From: " + email.From + "\n")
	sb.WriteString("To: " + email.To + "\n")
	sb.WriteString("Subject: " + email.Subject + "\n")
	sb.WriteString("Date: " + email.Date + "\n\n")
	sb.WriteString(email.Body)
	return sb.String(), nil
}

func messageBody(msg *mail.Message) (string, error) {
	contentType := msg.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "text/plain"
	}
	mediaType, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		mediaType = "text/plain"
	}

	if strings.HasPrefix(mediaType, "multipart/") {
		return multipartBody(msg.Body, params["boundary"])
	}

	text, err := decodePart(msg.Body, msg.Header.Get("Content-Transfer-Encoding"), params["charset"])
	if err != nil {
		return "", err
	}
	if strings.HasPrefix(mediaType, "text/html") {
		return stripHTML(text), nil
	}
	return text, nil
}

// multipartBody walks the parts and returns the first text/plain part, or
// the first text/html part tag-stripped when no plain part exists. Nested
// multiparts are descended into.
func multipartBody(r io.Reader, boundary string) (string, error) {
	if boundary == "" {
		return "", eris.New("docview: multipart email without boundary")
	}

	var htmlFallback string
	mr := multipart.NewReader(r, boundary)
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", eris.Wrap(err, "docview: read email part")
		}

		mediaType, params, err := mime.ParseMediaType(part.Header.Get("Content-Type"))
		if err != nil {
			continue
		}

		switch {
		case strings.HasPrefix(mediaType, "multipart/"):
			if nested, err := multipartBody(part, params["boundary"]); err == nil && nested != "" {
				return nested, nil
			}
		case mediaType == "text/plain":
			text, err := decodePart(part, part.Header.Get("Content-Transfer-Encoding"), params["charset"])
			if err == nil {
				return text, nil
			}
		case mediaType == "text/html" && htmlFallback == "":
			if text, err := decodePart(part, part.Header.Get("Content-Transfer-Encoding"), params["charset"]); err == nil {
				htmlFallback = stripHTML(text)
			}
		}
	}

	return htmlFallback, nil
}

// decodePart applies the transfer encoding and charset of one body part.
func decodePart(r io.Reader, transferEncoding, charset string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(transferEncoding)) {
	case "base64":
		r = base64.NewDecoder(base64.StdEncoding, r)
	case "quoted-printable":
		r = quotedprintable.NewReader(r)
	}

	if charset != "" && !strings.EqualFold(charset, "utf-8") && !strings.EqualFold(charset, "us-ascii") {
		enc, err := htmlindex.Get(charset)
		if err == nil {
			r = transform.NewReader(r, enc.NewDecoder())
		}
	}

	data, err := io.ReadAll(r)
	if err != nil {
		return "", eris.Wrap(err, "docview: decode email part")
	}
	return string(data), nil
}

func decodeHeader(raw string) string {
	dec := mime.WordDecoder{
		CharsetReader: func(charset string, input io.Reader) (io.Reader, error) {
			enc, err := htmlindex.Get(charset)
			if err != nil {
				return nil, err
			}
			return transform.NewReader(input, enc.NewDecoder()), nil
		},
	}
	decoded, err := dec.DecodeHeader(raw)
	if err != nil {
		return raw
	}
	return decoded
}

var (
	htmlBlockRe = regexp.MustCompile(`(?is)<(?:script|style)[^>]*>.*?</(?:script|style)>`)
	htmlBreakRe = regexp.MustCompile(`(?i)<br\s*/?>|</(?:p|div|tr|li|h[1-6])>`)
	htmlTagRe   = regexp.MustCompile(`(?s)<[^>]+>`)
	blankRunRe  = regexp.MustCompile(`\n{3,}`)
)

// stripHTML reduces an HTML body to readable text.
func stripHTML(html string) string {
	text := htmlBlockRe.ReplaceAllString(html, "")
	text = htmlBreakRe.ReplaceAllString(text, "\n")
	text = htmlTagRe.ReplaceAllString(text, "")

	replacer := strings.NewReplacer(
		"&nbsp;", " ",
		"&amp;", "&",
		"&lt;", "<",
		"&gt;", ">",
		"&quot;", `"`,
		"&#39;", "'",
	)
	text = replacer.Replace(text)
	text = blankRunRe.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}
