package types

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// MessageKind tells which variant a parsed Message holds.
type MessageKind int

const (
	// MessageGeneric is free text that is only recorded.
	MessageGeneric MessageKind = iota
	// MessageStatistics is a "<reporter>,<tag>,<height>" block report.
	MessageStatistics
	// MessageMalformed looks like a block report but cannot be used.
	MessageMalformed
)

func (k MessageKind) String() string {
	switch k {
	case MessageGeneric:
		return "generic"
	case MessageStatistics:
		return "statistics"
	case MessageMalformed:
		return "malformed"
	default:
		return fmt.Sprintf("MessageKind(%d)", int(k))
	}
}

var (
	ErrEmptyReporter = errors.New("empty reporter")
	ErrBadHeight     = errors.New("height is not a non-negative integer")
)

// Message is the parse result of one payload received from a node.
type Message struct {
	Kind MessageKind
	// Text is the payload as it is recorded in the primary log.
	Text string

	// Set for MessageStatistics.
	Reporter string
	Tag      string
	Height   uint64

	// Set for MessageMalformed.
	Err error
}

// ParseMessage classifies a payload. Exactly three comma separated fields
// make a block report; anything else is generic text.
func ParseMessage(text string) Message {
	fields := strings.Split(text, ",")
	if len(fields) != 3 {
		return Message{Kind: MessageGeneric, Text: text}
	}

	reporter := strings.TrimSpace(fields[0])
	tag := strings.TrimSpace(fields[1])
	if reporter == "" {
		return Message{Kind: MessageMalformed, Text: text, Err: ErrEmptyReporter}
	}

	height, err := strconv.ParseUint(strings.TrimSpace(fields[2]), 10, 64)
	if err != nil {
		return Message{Kind: MessageMalformed, Text: text, Err: fmt.Errorf("%w: %q", ErrBadHeight, fields[2])}
	}

	return Message{
		Kind:     MessageStatistics,
		Text:     text,
		Reporter: reporter,
		Tag:      tag,
		Height:   height,
	}
}
