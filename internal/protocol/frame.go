package protocol

import (
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/satriahrh/suara/domain/entities"
)

const (
	AudioFormat   = "audio/L16;rate=16000"
	AudioEncoding = "raw"
)

// Common carries the application identity, sent with the First frame only
type Common struct {
	AppID string `json:"app_id"`
}

// Business is the one-time recognition configuration sent with the First frame
type Business struct {
	Language  string `json:"language" yaml:"language"`
	Domain    string `json:"domain" yaml:"domain"`
	Accent    string `json:"accent" yaml:"accent"`
	VadEos    int    `json:"vad_eos" yaml:"vad_eos"`
	Dwa       string `json:"dwa,omitempty" yaml:"dwa"`
	Pd        string `json:"pd,omitempty" yaml:"pd"`
	Ptt       int    `json:"ptt" yaml:"ptt"`
	Rlang     string `json:"rlang,omitempty" yaml:"rlang"`
	Vinfo     int    `json:"vinfo" yaml:"vinfo"`
	Nunum     int    `json:"nunum" yaml:"nunum"`
	SpeexSize int    `json:"speex_size" yaml:"speex_size"`
	Nbest     int    `json:"nbest" yaml:"nbest"`
	Wbest     int    `json:"wbest" yaml:"wbest"`
}

// DefaultBusiness returns the Mandarin dictation settings
func DefaultBusiness() Business {
	return Business{
		Language:  "zh_cn",
		Domain:    "iat",
		Accent:    "mandarin",
		VadEos:    10000,
		Dwa:       "wpgs",
		Pd:        "game",
		Ptt:       1,
		Rlang:     "zh-cn",
		Vinfo:     1,
		Nunum:     1,
		SpeexSize: 70,
		Nbest:     1,
		Wbest:     1,
	}
}

// FrameData is the audio part present in every frame
type FrameData struct {
	Status   int    `json:"status"`
	Format   string `json:"format"`
	Encoding string `json:"encoding"`
	Audio    string `json:"audio"`
}

// FrameMessage is one outbound envelope
type FrameMessage struct {
	Common   *Common   `json:"common,omitempty"`
	Business *Business `json:"business,omitempty"`
	Data     FrameData `json:"data"`
}

// FrameEncoder builds outbound envelopes for a fixed application and business configuration
type FrameEncoder struct {
	appID    string
	business Business
}

// NewFrameEncoder creates an encoder
func NewFrameEncoder(appID string, business Business) *FrameEncoder {
	return &FrameEncoder{appID: appID, business: business}
}

// Message builds the envelope for a frame. Only the First frame carries the configuration block.
func (e *FrameEncoder) Message(state entities.FrameState, payload []byte) (FrameMessage, error) {
	msg := FrameMessage{
		Data: FrameData{
			Status:   int(state),
			Format:   AudioFormat,
			Encoding: AudioEncoding,
			Audio:    base64.StdEncoding.EncodeToString(payload),
		},
	}

	switch state {
	case entities.FrameStateFirst:
		business := e.business
		msg.Common = &Common{AppID: e.appID}
		msg.Business = &business
	case entities.FrameStateContinue, entities.FrameStateLast:
	default:
		return FrameMessage{}, fmt.Errorf("unknown frame state %d", int(state))
	}

	return msg, nil
}

// Encode builds and serializes the envelope for a frame
func (e *FrameEncoder) Encode(state entities.FrameState, payload []byte) ([]byte, error) {
	msg, err := e.Message(state, payload)
	if err != nil {
		return nil, err
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s frame: %w", state, err)
	}
	return data, nil
}

// DecodeFrame parses an outbound envelope back into its state and raw audio
func DecodeFrame(raw []byte) (FrameMessage, []byte, error) {
	var msg FrameMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return FrameMessage{}, nil, fmt.Errorf("failed to parse frame: %w", err)
	}

	audio, err := base64.StdEncoding.DecodeString(msg.Data.Audio)
	if err != nil {
		return FrameMessage{}, nil, fmt.Errorf("failed to decode frame audio: %w", err)
	}
	return msg, audio, nil
}
