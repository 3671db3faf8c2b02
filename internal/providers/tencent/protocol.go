package tencent

import (
	"encoding/json"
	"fmt"

	"vocalwrite/internal/domain"
)

// sliceTypeStable marks a fragment the server will not revise.
const sliceTypeStable = 2

// endOfStream is the text frame that tells the server no more audio follows.
var endOfStream = []byte(`{"type":"end"}`)

type serverMessage struct {
	Code      int           `json:"code"`
	Message   string        `json:"message"`
	VoiceID   string        `json:"voice_id"`
	MessageID string        `json:"message_id"`
	Result    *serverResult `json:"result"`
	Final     int           `json:"final"`
}

type serverResult struct {
	SliceType    int    `json:"slice_type"`
	Index        int    `json:"index"`
	StartTime    int    `json:"start_time"`
	EndTime      int    `json:"end_time"`
	VoiceTextStr string `json:"voice_text_str"`
}

// DecodeMessage turns one server frame into the events it carries, in the
// order they must be handled. An error status yields only the error event.
func DecodeMessage(payload []byte) ([]domain.RecognitionEvent, error) {
	var msg serverMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		return nil, fmt.Errorf("decode recognition message: %w", err)
	}

	if msg.Code != 0 {
		return []domain.RecognitionEvent{{
			Kind:    domain.RecognitionEventError,
			Code:    msg.Code,
			Message: msg.Message,
		}}, nil
	}

	var events []domain.RecognitionEvent
	if msg.Result != nil {
		events = append(events, domain.RecognitionEvent{
			Kind:   domain.RecognitionEventTranscript,
			Text:   msg.Result.VoiceTextStr,
			Stable: msg.Result.SliceType == sliceTypeStable,
		})
	}
	if msg.Final == 1 {
		events = append(events, domain.RecognitionEvent{Kind: domain.RecognitionEventFinal})
	}
	return events, nil
}
