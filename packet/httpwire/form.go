package httpwire

import (
	"bytes"
	"strings"

	"github.com/nabbar/reactor/codec/urlenc"
)

func splitFormImpl(body []byte) (map[string][]string, error) {
	out := make(map[string][]string)
	for _, pair := range strings.Split(string(body), "&") {
		if pair == "" {
			continue
		}
		kv := strings.SplitN(pair, "=", 2)
		var key, val bytes.Buffer
		if err := urlenc.DecodeURL2(&key, []byte(kv[0])); err != nil {
			return nil, err
		}
		if len(kv) == 2 {
			if err := urlenc.DecodeURL2(&val, []byte(kv[1])); err != nil {
				return nil, err
			}
		}
		out[key.String()] = append(out[key.String()], val.String())
	}
	return out, nil
}

func mergeFormImpl(values map[string][]string) []byte {
	var b bytes.Buffer
	first := true
	for k, vs := range values {
		for _, v := range vs {
			if !first {
				b.WriteByte('&')
			}
			first = false
			var ek, ev bytes.Buffer
			_ = urlenc.EncodeURL2(&ek, []byte(k))
			_ = urlenc.EncodeURL2(&ev, []byte(v))
			b.Write(ek.Bytes())
			b.WriteByte('=')
			b.Write(ev.Bytes())
		}
	}
	return b.Bytes()
}
