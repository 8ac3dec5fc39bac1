// Package template renders notification content from payload variable bags
// using the Liquid template language. Used when a queue record carries a
// payload instead of pre-rendered directContent.
package template

import (
	"fmt"
	"strings"
	"sync"

	"github.com/osteele/liquid"
)

// Set is the template bundle registered for one event type.
type Set struct {
	Subject  string
	HTMLBody string
	TextBody string
	SMSBody  string
}

// Rendered is the output of rendering a Set against a payload.
type Rendered struct {
	Subject  string
	HTMLBody string
	TextBody string
	SMSBody  string
}

// Engine renders Liquid templates with a parse cache.
type Engine struct {
	engine *liquid.Engine
	cache  sync.Map // template source -> *liquid.Template

	mu   sync.RWMutex
	sets map[string]Set // event type -> templates
}

// NewEngine creates a template engine with the engine's custom filters.
func NewEngine() *Engine {
	e := &Engine{
		engine: liquid.NewEngine(),
		sets:   make(map[string]Set),
	}
	e.registerFilters()
	return e
}

func (e *Engine) registerFilters() {
	// {{ first_name | default: "there" }}
	e.engine.RegisterFilter("default", func(value interface{}, defaultVal string) interface{} {
		if value == nil {
			return defaultVal
		}
		s := fmt.Sprintf("%v", value)
		if s == "" || s == "<nil>" {
			return defaultVal
		}
		return value
	})

	// {{ code | upper }}
	e.engine.RegisterFilter("upper", strings.ToUpper)

	// {{ description | truncate: 120 }}
	e.engine.RegisterFilter("truncate", func(s string, length int) string {
		if len(s) <= length {
			return s
		}
		if length <= 3 {
			return s[:length]
		}
		return s[:length-3] + "..."
	})

	// {{ phone | phone_pretty }} → "(555) 123-4567" for 10-digit US numbers
	e.engine.RegisterFilter("phone_pretty", func(s string) string {
		digits := strings.Map(func(r rune) rune {
			if r >= '0' && r <= '9' {
				return r
			}
			return -1
		}, s)
		if len(digits) == 11 && digits[0] == '1' {
			digits = digits[1:]
		}
		if len(digits) != 10 {
			return s
		}
		return fmt.Sprintf("(%s) %s-%s", digits[:3], digits[3:6], digits[6:])
	})
}

// Register binds a template set to an event type, replacing any previous
// binding.
func (e *Engine) Register(eventType string, set Set) {
	e.mu.Lock()
	e.sets[eventType] = set
	e.mu.Unlock()
}

// Registered reports whether templates exist for the event type.
func (e *Engine) Registered(eventType string) bool {
	e.mu.RLock()
	_, ok := e.sets[eventType]
	e.mu.RUnlock()
	return ok
}

// Render renders the event type's templates against the payload.
func (e *Engine) Render(eventType string, payload map[string]interface{}) (*Rendered, error) {
	e.mu.RLock()
	set, ok := e.sets[eventType]
	e.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("no templates registered for event type %q", eventType)
	}

	out := &Rendered{}
	var err error
	if out.Subject, err = e.RenderString(set.Subject, payload); err != nil {
		return nil, fmt.Errorf("render subject: %w", err)
	}
	if out.HTMLBody, err = e.RenderString(set.HTMLBody, payload); err != nil {
		return nil, fmt.Errorf("render html body: %w", err)
	}
	if out.TextBody, err = e.RenderString(set.TextBody, payload); err != nil {
		return nil, fmt.Errorf("render text body: %w", err)
	}
	if out.SMSBody, err = e.RenderString(set.SMSBody, payload); err != nil {
		return nil, fmt.Errorf("render sms body: %w", err)
	}
	return out, nil
}

// RenderString renders a single template source against the payload,
// caching the parsed template.
func (e *Engine) RenderString(source string, payload map[string]interface{}) (string, error) {
	if source == "" {
		return "", nil
	}

	var tpl *liquid.Template
	if cached, ok := e.cache.Load(source); ok {
		tpl = cached.(*liquid.Template)
	} else {
		parsed, err := e.engine.ParseTemplate([]byte(source))
		if err != nil {
			return "", fmt.Errorf("parse template: %w", err)
		}
		e.cache.Store(source, parsed)
		tpl = parsed
	}

	out, err := tpl.Render(payload)
	if err != nil {
		return "", fmt.Errorf("render template: %w", err)
	}
	return string(out), nil
}
