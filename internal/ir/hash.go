package ir

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"reflect"
	"sort"
	"strconv"
	"time"
)

// Domain prefixes for fingerprints. The version suffix allows the encoding
// to change without colliding with older digests.
const (
	DomainRequest   = "osq/request/v1"
	DomainPageToken = "osq/pagetoken/v1"
	DomainSavedSet  = "osq/savedset/v1"
)

// hashWithDomain computes SHA256(domain + 0x00 + data).
// The null separator prevents domain/data boundary ambiguity.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// Fingerprint hashes a structural walk of v under domain. The walk records
// the dynamic type of every interface value, so sealed variants with the
// same fields (intersected vs unioned) never collide. Map keys are sorted.
func Fingerprint(domain string, v any) (string, error) {
	var buf bytes.Buffer
	if err := walk(&buf, reflect.ValueOf(v)); err != nil {
		return "", fmt.Errorf("fingerprint %s: %w", domain, err)
	}
	return hashWithDomain(domain, buf.Bytes()), nil
}

var (
	timeType      = reflect.TypeOf(time.Time{})
	timestampType = reflect.TypeOf(Timestamp{})
)

func walk(buf *bytes.Buffer, v reflect.Value) error {
	if !v.IsValid() {
		buf.WriteString("nil")
		return nil
	}
	switch v.Type() {
	case timeType, timestampType:
		t := time.Unix(0, 0)
		if v.CanInterface() {
			switch tv := v.Interface().(type) {
			case time.Time:
				t = tv
			case Timestamp:
				t = tv.Time()
			}
		}
		buf.WriteString(strconv.Quote(t.UTC().Format(time.RFC3339Nano)))
		return nil
	}

	switch v.Kind() {
	case reflect.Interface:
		if v.IsNil() {
			buf.WriteString("nil")
			return nil
		}
		elem := v.Elem()
		buf.WriteString("<" + elem.Type().String() + ">")
		return walk(buf, elem)
	case reflect.Pointer:
		if v.IsNil() {
			buf.WriteString("nil")
			return nil
		}
		return walk(buf, v.Elem())
	case reflect.Struct:
		buf.WriteString(v.Type().String())
		buf.WriteByte('{')
		t := v.Type()
		for i := 0; i < v.NumField(); i++ {
			if !t.Field(i).IsExported() {
				continue
			}
			buf.WriteString(t.Field(i).Name)
			buf.WriteByte('=')
			if err := walk(buf, v.Field(i)); err != nil {
				return err
			}
			buf.WriteByte(';')
		}
		buf.WriteByte('}')
	case reflect.Map:
		if v.IsNil() {
			buf.WriteString("nil")
			return nil
		}
		keys := v.MapKeys()
		sort.Slice(keys, func(i, j int) bool {
			return fmt.Sprint(keys[i].Interface()) < fmt.Sprint(keys[j].Interface())
		})
		buf.WriteByte('{')
		for _, k := range keys {
			buf.WriteString(strconv.Quote(fmt.Sprint(k.Interface())))
			buf.WriteByte(':')
			if err := walk(buf, v.MapIndex(k)); err != nil {
				return err
			}
			buf.WriteByte(';')
		}
		buf.WriteByte('}')
	case reflect.Slice, reflect.Array:
		if v.Kind() == reflect.Slice && v.IsNil() {
			buf.WriteString("nil")
			return nil
		}
		buf.WriteByte('[')
		for i := 0; i < v.Len(); i++ {
			if err := walk(buf, v.Index(i)); err != nil {
				return err
			}
			buf.WriteByte(',')
		}
		buf.WriteByte(']')
	case reflect.String:
		buf.WriteString(strconv.Quote(v.String()))
	case reflect.Bool:
		buf.WriteString(strconv.FormatBool(v.Bool()))
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		buf.WriteString(strconv.FormatInt(v.Int(), 10))
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		buf.WriteString(strconv.FormatUint(v.Uint(), 10))
	case reflect.Float32, reflect.Float64:
		buf.WriteString(strconv.FormatFloat(v.Float(), 'g', -1, 64))
	default:
		return fmt.Errorf("cannot fingerprint %s", v.Type())
	}
	return nil
}
