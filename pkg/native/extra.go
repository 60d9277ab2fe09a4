package native

import (
	"bytes"
	"compress/gzip"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"io"
	"regexp"

	"github.com/oxvm/oxvm/pkg/interop"
	"github.com/oxvm/oxvm/pkg/pool"
	"github.com/oxvm/oxvm/pkg/value"
)

// registerExtra binds the string/encoding natives a scripted game
// system reaches for directly (hashing an item id, matching a console
// command, packing a save blob) - deliberately narrower than a
// general-purpose stdlib surface: no file or network access is
// exposed to scripts.
func registerExtra(reg func(string, interop.Function)) {
	reg("Sha256Hex;String;String", interop.Wrap1(interop.String, func(s string) value.Value {
		sum := sha256.Sum256([]byte(s))
		return value.Str(hex.EncodeToString(sum[:]))
	}))

	reg("Base64Encode;String;String", interop.Wrap1(interop.String, func(s string) value.Value {
		return value.Str(base64.StdEncoding.EncodeToString([]byte(s)))
	}))
	reg("Base64Decode;String;String", interop.Wrap1(interop.String, func(s string) value.Value {
		decoded, err := base64.StdEncoding.DecodeString(s)
		if err != nil {
			return value.Str("")
		}
		return value.Str(string(decoded))
	}))

	reg("GzipCompress;String;String", interop.Wrap1(interop.String, func(s string) value.Value {
		var buf bytes.Buffer
		w := gzip.NewWriter(&buf)
		if _, err := w.Write([]byte(s)); err != nil {
			return value.Str("")
		}
		if err := w.Close(); err != nil {
			return value.Str("")
		}
		return value.Str(base64.StdEncoding.EncodeToString(buf.Bytes()))
	}))
	reg("GzipDecompress;String;String", interop.Wrap1(interop.String, func(s string) value.Value {
		raw, err := base64.StdEncoding.DecodeString(s)
		if err != nil {
			return value.Str("")
		}
		r, err := gzip.NewReader(bytes.NewReader(raw))
		if err != nil {
			return value.Str("")
		}
		defer r.Close()
		out, err := io.ReadAll(r)
		if err != nil {
			return value.Str("")
		}
		return value.Str(string(out))
	}))

	reg("RegexMatch;StringString;Bool", interop.Wrap2(interop.String, interop.String, func(pattern, s string) value.Value {
		ok, err := regexp.MatchString(pattern, s)
		if err != nil {
			return value.Bool(false)
		}
		return value.Bool(ok)
	}))
	reg("RegexReplace;StringStringString;String", wrap3(interop.String, interop.String, interop.String,
		func(pattern, repl, s string) value.Value {
			re, err := regexp.Compile(pattern)
			if err != nil {
				return value.Str(s)
			}
			return value.Str(re.ReplaceAllString(s, repl))
		}))
}

// wrap3 fills the ternary-function gap pkg/interop doesn't carry a
// Wrap3 for - every other native this package registers is nullary,
// unary or binary.
func wrap3[A, B, C any](fromA interop.FromVM[A], fromB interop.FromVM[B], fromC interop.FromVM[C], fn func(A, B, C) value.Value) interop.Function {
	return func(args []value.Value, p *pool.ConstantPool) (value.Value, error) {
		if len(args) != 3 {
			return value.Value{}, fmt.Errorf("native: expected 3 arguments, got %d", len(args))
		}
		a, err := fromA(args[0], p)
		if err != nil {
			return value.Value{}, err
		}
		b, err := fromB(args[1], p)
		if err != nil {
			return value.Value{}, err
		}
		c, err := fromC(args[2], p)
		if err != nil {
			return value.Value{}, err
		}
		return fn(a, b, c), nil
	}
}
