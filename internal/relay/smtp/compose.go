package smtp

import (
	"fmt"
	"io"
	"strings"
	"time"

	"deadman/internal/relay"

	gomail "github.com/emersion/go-message/mail"
)

// Compose writes msg as a text/plain RFC 5322 message.
func Compose(w io.Writer, msg relay.Message, now time.Time) error {
	var h gomail.Header
	h.SetDate(now)
	h.SetSubject(msg.Subject)
	h.SetMessageID(newMessageID())
	if from, err := gomail.ParseAddress(msg.Origin); err == nil {
		h.SetAddressList("From", []*gomail.Address{from})
	} else {
		// Bare sender names (e.g. "DEADMAN") are kept verbatim.
		h.Set("From", strings.TrimSpace(msg.Origin))
	}
	if to, err := gomail.ParseAddressList(msg.Destination); err == nil {
		h.SetAddressList("To", to)
	} else {
		h.Set("To", strings.TrimSpace(msg.Destination))
	}
	h.SetContentType("text/plain", map[string]string{"charset": "utf-8"})

	mw, err := gomail.CreateSingleInlineWriter(w, h)
	if err != nil {
		return err
	}
	if _, err := io.WriteString(mw, msg.Body); err != nil {
		_ = mw.Close()
		return err
	}
	return mw.Close()
}

// recipients splits a destination into envelope addresses.
func recipients(dest string) ([]string, error) {
	list, err := gomail.ParseAddressList(dest)
	if err != nil {
		return nil, fmt.Errorf("invalid destination %q: %w", dest, err)
	}
	if len(list) == 0 {
		return nil, fmt.Errorf("empty destination")
	}
	out := make([]string, 0, len(list))
	for _, a := range list {
		out = append(out, a.Address)
	}
	return out, nil
}

// envelopeAddress extracts the bare address for MAIL FROM.
func envelopeAddress(origin string) string {
	if a, err := gomail.ParseAddress(origin); err == nil {
		return a.Address
	}
	return strings.TrimSpace(origin)
}
