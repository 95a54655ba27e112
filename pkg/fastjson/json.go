package fastjson

import (
	"io"

	gojson "github.com/goccy/go-json"
)

// Marshal serializes v using goccy/go-json.
func Marshal(v interface{}) ([]byte, error) {
	return gojson.Marshal(v)
}

func Unmarshal(data []byte, v interface{}) error {
	return gojson.Unmarshal(data, v)
}

func MarshalIndent(v interface{}, prefix, indent string) ([]byte, error) {
	return gojson.MarshalIndent(v, prefix, indent)
}

// WriteIndent encodes v to w with two space indentation and a trailing newline.
func WriteIndent(w io.Writer, v interface{}) error {
	enc := gojson.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
