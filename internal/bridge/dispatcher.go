// Package bridge connects a web UI to native handlers.
//
// The page sends messages by loading URLs of the form
//
//	<protocol>method?positional&name=value
//
// where every component is URL-escaped and may additionally carry
// JavaScript-style \uXXXX escapes. A Dispatcher decodes such a URL and
// calls the handler registered for the method. Method names are looked
// up in a table; nothing in the message is ever evaluated.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf16"

	"github.com/sirupsen/logrus"
)

// ErrUnknownMethod is returned for messages naming no registered handler.
var ErrUnknownMethod = errors.New("unknown bridge method")

// Message is one decoded bridge call.
type Message struct {
	Method string
	Args   []string
	Kwargs map[string]string
}

// Handler services one bridge method.
type Handler func(ctx context.Context, msg Message) error

// Dispatcher routes messages for one protocol prefix to handlers.
type Dispatcher struct {
	Protocol string
	Log      logrus.FieldLogger

	handlers map[string]Handler
}

// NewDispatcher creates a dispatcher for URLs starting with protocol,
// e.g. "pew://" or "/pew/".
func NewDispatcher(protocol string, log logrus.FieldLogger) *Dispatcher {
	return &Dispatcher{Protocol: protocol, Log: log, handlers: map[string]Handler{}}
}

// Handle registers h for method, replacing any earlier handler.
func (d *Dispatcher) Handle(method string, h Handler) {
	d.handlers[method] = h
}

// Methods lists the registered method names, sorted.
func (d *Dispatcher) Methods() []string {
	names := make([]string, 0, len(d.handlers))
	for name := range d.handlers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// SetProtocolScript is the JavaScript that points the page's bridge at
// this dispatcher.
func (d *Dispatcher) SetProtocolScript() string {
	return "bridge.setProtocol(" + strconv.Quote(d.Protocol) + ");"
}

// Parse decodes rawURL. ok is false when the URL does not use the
// dispatcher's protocol. A path after the method ("a/b") is joined with
// dots ("a.b").
func (d *Dispatcher) Parse(rawURL string) (msg Message, ok bool, err error) {
	rest, ok := strings.CutPrefix(rawURL, d.Protocol)
	if !ok {
		return Message{}, false, nil
	}

	method, query, _ := strings.Cut(rest, "?")
	method = strings.Trim(method, "/")
	if method == "" {
		return Message{}, true, fmt.Errorf("bridge message %q names no method", rawURL)
	}
	if method, err = decode(method); err != nil {
		return Message{}, true, err
	}
	msg.Method = strings.ReplaceAll(method, "/", ".")

	if query == "" {
		return msg, true, nil
	}
	for _, arg := range strings.Split(query, "&") {
		pieces := strings.Split(arg, "=")
		if len(pieces) == 2 {
			name, err := decode(pieces[0])
			if err != nil {
				return Message{}, true, err
			}
			value, err := decode(pieces[1])
			if err != nil {
				return Message{}, true, err
			}
			if msg.Kwargs == nil {
				msg.Kwargs = map[string]string{}
			}
			msg.Kwargs[name] = value
			continue
		}
		value, err := decode(arg)
		if err != nil {
			return Message{}, true, err
		}
		msg.Args = append(msg.Args, value)
	}
	return msg, true, nil
}

// Dispatch parses rawURL and runs its handler. handled is false when the
// URL is not a bridge message and should load normally.
func (d *Dispatcher) Dispatch(ctx context.Context, rawURL string) (handled bool, err error) {
	msg, ok, err := d.Parse(rawURL)
	if !ok {
		return false, nil
	}
	if err != nil {
		return true, err
	}

	h, found := d.handlers[msg.Method]
	if !found {
		return true, fmt.Errorf("%w: %q", ErrUnknownMethod, msg.Method)
	}
	d.Log.WithFields(logrus.Fields{"method": msg.Method, "args": len(msg.Args)}).Debug("Dispatching bridge message")
	return true, h(ctx, msg)
}

// decode removes URL escaping and then \uXXXX escapes.
func decode(s string) (string, error) {
	unescaped, err := url.PathUnescape(s)
	if err != nil {
		return "", fmt.Errorf("invalid escape in bridge message: %w", err)
	}
	return unescapeUnicode(unescaped), nil
}

// unescapeUnicode replaces \uXXXX sequences, joining surrogate pairs.
// Malformed sequences are kept as they are.
func unescapeUnicode(s string) string {
	if !strings.Contains(s, `\u`) {
		return s
	}
	var b strings.Builder
	for i := 0; i < len(s); {
		r, ok := hexRune(s, i)
		if !ok {
			b.WriteByte(s[i])
			i++
			continue
		}
		i += 6
		if utf16.IsSurrogate(r) {
			if low, ok := hexRune(s, i); ok {
				if pair := utf16.DecodeRune(r, low); pair != unicode.ReplacementChar {
					r = pair
					i += 6
				}
			}
		}
		b.WriteRune(r)
	}
	return b.String()
}

// hexRune reads a \uXXXX escape at s[i:].
func hexRune(s string, i int) (rune, bool) {
	if i+6 > len(s) || s[i] != '\\' || s[i+1] != 'u' {
		return 0, false
	}
	v, err := strconv.ParseUint(s[i+2:i+6], 16, 32)
	if err != nil {
		return 0, false
	}
	return rune(v), true
}
