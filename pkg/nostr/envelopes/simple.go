package envelopes

import (
	"fmt"

	"github.com/mailru/easyjson/jwriter"
	"github.com/nostric/connectr/pkg/escape"
	"github.com/tidwall/gjson"
)

// Close asks the relay to stop a subscription; the value is the
// subscription ID.
type Close string

var _ E = (*Close)(nil)

func (Close) Label() string { return "CLOSE" }

func (v *Close) UnmarshalJSON(data []byte) error {
	s, err := secondString(data, "CLOSE")
	*v = Close(s)
	return err
}

func (v *Close) MarshalJSON() ([]byte, error) {
	return wrapString("CLOSE", string(*v)), nil
}

// EOSE signals the end of stored events on a subscription; the value is the
// subscription ID.
type EOSE string

var _ E = (*EOSE)(nil)

func (EOSE) Label() string { return "EOSE" }

func (v *EOSE) UnmarshalJSON(data []byte) error {
	s, err := secondString(data, "EOSE")
	*v = EOSE(s)
	return err
}

func (v *EOSE) MarshalJSON() ([]byte, error) {
	return wrapString("EOSE", string(*v)), nil
}

// Notice is a human readable message from the relay.
type Notice string

var _ E = (*Notice)(nil)

func (Notice) Label() string { return "NOTICE" }

func (v *Notice) UnmarshalJSON(data []byte) error {
	s, err := secondString(data, "NOTICE")
	*v = Notice(s)
	return err
}

func (v *Notice) MarshalJSON() ([]byte, error) {
	return wrapString("NOTICE", string(*v)), nil
}

func secondString(data []byte, label string) (string, error) {
	arr := gjson.ParseBytes(data).Array()
	if len(arr) < 2 {
		return "", fmt.Errorf("failed to decode %s envelope", label)
	}
	return arr[1].Str, nil
}

func wrapString(label, s string) []byte {
	w := jwriter.Writer{}
	w.RawString(`["` + label + `",`)
	w.Raw(escape.String(nil, s), nil)
	w.RawString(`]`)
	b, _ := w.BuildBytes()
	return b
}
