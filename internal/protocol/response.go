package protocol

import (
	"encoding/json"
	"strings"

	"github.com/satriahrh/suara/domain"
)

// StatusFinal marks the recognizer's last response of a session
const StatusFinal = 2

// Response is an inbound recognition envelope
type Response struct {
	Code    int           `json:"code"`
	Message string        `json:"message"`
	SID     string        `json:"sid,omitempty"`
	Data    *ResponseData `json:"data,omitempty"`
}

// ResponseData wraps the result and the response status
type ResponseData struct {
	Status int     `json:"status"`
	Result *Result `json:"result,omitempty"`
}

// Result is one incremental recognition result
type Result struct {
	Sn  int    `json:"sn,omitempty"`
	Ls  bool   `json:"ls,omitempty"`
	Pgs string `json:"pgs,omitempty"`
	Rg  []int  `json:"rg,omitempty"`
	Ws  []Word `json:"ws,omitempty"`
}

// Word is one recognized word position with its candidates
type Word struct {
	Bg int         `json:"bg,omitempty"`
	Cw []Candidate `json:"cw"`
}

// Candidate is one candidate spelling of a word
type Candidate struct {
	W  string  `json:"w"`
	Sc float64 `json:"sc,omitempty"`
}

// Text flattens the word list into a contiguous fragment
func (r *Result) Text() string {
	if r == nil {
		return ""
	}
	var b strings.Builder
	for _, word := range r.Ws {
		for _, candidate := range word.Cw {
			b.WriteString(candidate.W)
		}
	}
	return b.String()
}

// Recognition is the interpretation of one inbound message
type Recognition struct {
	SID      string
	Fragment string
	Terminal bool
}

// ParseResponse decodes an inbound message. Undecodable input yields a
// *domain.MalformedResponseError; a non-zero code yields a *domain.ProtocolError.
func ParseResponse(raw []byte) (Recognition, error) {
	var resp Response
	if err := json.Unmarshal(raw, &resp); err != nil {
		return Recognition{}, &domain.MalformedResponseError{Raw: string(raw), Err: err}
	}

	if resp.Code != 0 {
		return Recognition{}, &domain.ProtocolError{Code: resp.Code, Message: resp.Message, SID: resp.SID}
	}

	rec := Recognition{SID: resp.SID}
	if resp.Data != nil {
		rec.Fragment = resp.Data.Result.Text()
		rec.Terminal = resp.Data.Status == StatusFinal
	}
	return rec, nil
}
