package bm13xx

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"reflect"
)

// Job payload fields go on the wire in host (little-endian) order.
var jobByteOrder = binary.LittleEndian

func Pack(elts ...interface{}) ([]byte, error) {
	buf := new(bytes.Buffer)
	for _, e := range elts {
		if err := packValue(buf, reflect.ValueOf(e)); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}

func packValue(buf io.Writer, v reflect.Value) error {
	switch v.Kind() {
	case reflect.Ptr:
		if v.IsNil() {
			return fmt.Errorf("cannot pack nil %s", v.Type().String())
		}
		return packValue(buf, v.Elem())
	case reflect.Struct:
		for i := 0; i < v.NumField(); i++ {
			if err := packValue(buf, v.Field(i)); err != nil {
				return err
			}
		}
	default:
		return binary.Write(buf, jobByteOrder, v.Interface())
	}
	return nil
}

// Unpack fills elts from b and returns the number of bytes consumed.
func Unpack(b []byte, elts ...interface{}) (int, error) {
	buf := bytes.NewBuffer(b)
	for _, e := range elts {
		v := reflect.ValueOf(e)
		if v.Kind() != reflect.Ptr {
			return 0, fmt.Errorf("non-pointer value %q passed to Unpack", v.Type().String())
		}
		if v.IsNil() {
			return 0, errors.New("nil pointer passed to Unpack")
		}
		if err := unpackValue(buf, v); err != nil {
			return len(b) - buf.Len(), err
		}
	}
	return len(b) - buf.Len(), nil
}

func unpackValue(buf io.Reader, v reflect.Value) error {
	switch v.Kind() {
	case reflect.Ptr:
		if v.IsNil() {
			return fmt.Errorf("cannot unpack nil %s", v.Type().String())
		}
		return unpackValue(buf, v.Elem())
	case reflect.Struct:
		for i := 0; i < v.NumField(); i++ {
			if err := unpackValue(buf, v.Field(i)); err != nil {
				return err
			}
		}
		return nil
	default:
		if !v.CanAddr() {
			return fmt.Errorf("cannot unpack unaddressable leaf type %q", v.Type().String())
		}
		return binary.Read(buf, jobByteOrder, v.Addr().Interface())
	}
}
