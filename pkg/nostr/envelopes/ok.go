package envelopes

import (
	"fmt"

	"github.com/mailru/easyjson/jwriter"
	"github.com/nostric/connectr/pkg/escape"
	"github.com/tidwall/gjson"
)

// OK is the relay's accept/reject response to a published event.
type OK struct {
	EventID string
	OK      bool
	Reason  string
}

var _ E = (*OK)(nil)

func (OK) Label() string { return "OK" }

func (v *OK) UnmarshalJSON(data []byte) error {
	arr := gjson.ParseBytes(data).Array()
	if len(arr) < 4 {
		return fmt.Errorf("failed to decode OK envelope: missing fields")
	}
	v.EventID = arr[1].Str
	v.OK = arr[2].Raw == "true"
	v.Reason = arr[3].Str
	return nil
}

func (v *OK) MarshalJSON() ([]byte, error) {
	w := jwriter.Writer{}
	w.RawString(`["OK",`)
	w.Raw(escape.String(nil, v.EventID), nil)
	if v.OK {
		w.RawString(`,true,`)
	} else {
		w.RawString(`,false,`)
	}
	w.Raw(escape.String(nil, v.Reason), nil)
	w.RawString(`]`)
	return w.BuildBytes()
}

// Closed is the relay ending a subscription from its side, with a reason.
type Closed struct {
	SubscriptionID string
	Reason         string
}

var _ E = (*Closed)(nil)

func (Closed) Label() string { return "CLOSED" }

func (v *Closed) UnmarshalJSON(data []byte) error {
	arr := gjson.ParseBytes(data).Array()
	if len(arr) < 3 {
		return fmt.Errorf("failed to decode CLOSED envelope: missing fields")
	}
	v.SubscriptionID = arr[1].Str
	v.Reason = arr[2].Str
	return nil
}

func (v *Closed) MarshalJSON() ([]byte, error) {
	w := jwriter.Writer{}
	w.RawString(`["CLOSED",`)
	w.Raw(escape.String(nil, v.SubscriptionID), nil)
	w.RawByte(',')
	w.Raw(escape.String(nil, v.Reason), nil)
	w.RawString(`]`)
	return w.BuildBytes()
}
