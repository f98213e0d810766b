package envelopes

import (
	"fmt"

	"github.com/mailru/easyjson/jwriter"
	"github.com/nostric/connectr/pkg/escape"
	"github.com/nostric/connectr/pkg/nostr/filter"
	"github.com/nostric/connectr/pkg/nostr/filters"
	"github.com/nostric/connectr/pkg/nostr/kind"
	"github.com/nostric/connectr/pkg/nostr/timestamp"
	"github.com/tidwall/gjson"
)

// Req opens a subscription with a set of filters.
type Req struct {
	SubscriptionID string
	Filters        filters.T
}

var _ E = (*Req)(nil)

func (Req) Label() string { return "REQ" }

func (v *Req) UnmarshalJSON(data []byte) error {
	r := gjson.ParseBytes(data)
	arr := r.Array()
	if len(arr) < 3 {
		return fmt.Errorf("failed to decode REQ envelope: missing filters")
	}
	v.SubscriptionID = arr[1].Str
	v.Filters = make(filters.T, 0, len(arr)-2)
	for i := 2; i < len(arr); i++ {
		f, err := filterFromResult(arr[i])
		if err != nil {
			return fmt.Errorf("%w -- on filter %d", err, i-2)
		}
		v.Filters = append(v.Filters, f)
	}
	return nil
}

func (v *Req) MarshalJSON() ([]byte, error) {
	w := jwriter.Writer{}
	w.RawString(`["REQ",`)
	w.Raw(escape.String(nil, v.SubscriptionID), nil)
	for _, f := range v.Filters {
		w.RawByte(',')
		f.MarshalEasyJSON(&w)
	}
	w.RawString(`]`)
	return w.BuildBytes()
}

func filterFromResult(r gjson.Result) (f filter.T, err error) {
	if !r.IsObject() {
		return f, fmt.Errorf("filter is not a JSON object: %s", r.Raw)
	}
	r.ForEach(func(key, value gjson.Result) bool {
		switch key.Str {
		case "ids":
			f.IDs = resultStrings(value)
		case "authors":
			f.Authors = resultStrings(value)
		case "kinds":
			f.Kinds = make([]kind.T, 0)
			for _, k := range value.Array() {
				f.Kinds = append(f.Kinds, kind.T(k.Uint()))
			}
		case "since":
			since := timestamp.T(value.Int())
			f.Since = &since
		case "until":
			until := timestamp.T(value.Int())
			f.Until = &until
		case "limit":
			f.Limit = int(value.Int())
		default:
			if len(key.Str) == 2 && key.Str[0] == '#' {
				if f.Tags == nil {
					f.Tags = make(filter.TagMap)
				}
				f.Tags[key.Str[1:]] = resultStrings(value)
			}
		}
		return true
	})
	return
}

func resultStrings(r gjson.Result) (ss []string) {
	ss = make([]string, 0)
	for _, el := range r.Array() {
		ss = append(ss, el.Str)
	}
	return
}
