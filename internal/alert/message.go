package alert

import (
	"strings"
	"time"
)

const appName = "backpack-mm"

// Message is one alert as handed to a Notifier. Fields are sorted by key.
type Message struct {
	Event    string
	At       time.Time
	Exchange string
	Symbol   string
	Fields   []Field
}

type Field struct {
	Key   string
	Value string
}

// Field returns the value for key and whether it was present.
func (m Message) Field(key string) (string, bool) {
	for _, f := range m.Fields {
		if f.Key == key {
			return f.Value, true
		}
	}
	return "", false
}

// Text renders the message as plain lines, header first.
func (m Message) Text() string {
	lines := []string{
		"[" + appName + "] " + m.Event,
		"time: " + m.At.Format(time.RFC3339),
		"exchange: " + m.Exchange,
		"symbol: " + m.Symbol,
	}
	for _, f := range m.Fields {
		lines = append(lines, f.Key+": "+f.Value)
	}
	return strings.Join(lines, "\n")
}
