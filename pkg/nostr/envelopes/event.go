package envelopes

import (
	"fmt"

	"github.com/mailru/easyjson/jwriter"
	"github.com/nostric/connectr/pkg/escape"
	"github.com/nostric/connectr/pkg/nostr/event"
	"github.com/tidwall/gjson"
)

// Event carries an event, with the subscription ID present on frames coming
// from a relay in response to a REQ and absent on client publishes.
type Event struct {
	SubscriptionID *string
	T              event.T
}

var _ E = (*Event)(nil)

func (Event) Label() string { return "EVENT" }

func (v *Event) UnmarshalJSON(data []byte) error {
	r := gjson.ParseBytes(data)
	arr := r.Array()
	switch len(arr) {
	case 2:
		ev, err := event.FromResult(arr[1])
		if err != nil {
			return err
		}
		v.T = *ev
		return nil
	case 3:
		v.SubscriptionID = &arr[1].Str
		ev, err := event.FromResult(arr[2])
		if err != nil {
			return err
		}
		v.T = *ev
		return nil
	default:
		return fmt.Errorf("failed to decode EVENT envelope")
	}
}

func (v *Event) MarshalJSON() ([]byte, error) {
	w := jwriter.Writer{}
	w.RawString(`["EVENT",`)
	if v.SubscriptionID != nil {
		w.Raw(escape.String(nil, *v.SubscriptionID), nil)
		w.RawByte(',')
	}
	v.T.MarshalEasyJSON(&w)
	w.RawString(`]`)
	return w.BuildBytes()
}
