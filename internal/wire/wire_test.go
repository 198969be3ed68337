package wire

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"google.golang.org/protobuf/encoding/protowire"
)

func TestWalkRoundTrip(t *testing.T) {
	inner := (&Builder{}).Int32(1, 10040).Float(2, 1.5)
	b := (&Builder{}).
		Int64(1, -1572883457).
		String(12, "AID_SYSTEM").
		Bool(3, true).
		Double(17, 42.25).
		Message(5, inner).
		Bytes()

	type seen struct {
		Num  protowire.Number
		Type protowire.Type
	}
	var got []seen
	err := Walk(b, func(f Field) error {
		got = append(got, seen{f.Num, f.Type})
		switch f.Num {
		case 1:
			if f.Int64() != -1572883457 {
				t.Errorf("field 1 = %d", f.Int64())
			}
		case 12:
			if string(f.Bytes) != "AID_SYSTEM" {
				t.Errorf("field 12 = %q", f.Bytes)
			}
		case 3:
			if !f.Bool() {
				t.Errorf("field 3 = false")
			}
		case 17:
			if f.Double() != 42.25 {
				t.Errorf("field 17 = %v", f.Double())
			}
		case 5:
			var uid int32
			var mah float32
			if err := Walk(f.Bytes, func(f Field) error {
				switch f.Num {
				case 1:
					uid = f.Int32()
				case 2:
					mah = f.Float()
				}
				return nil
			}); err != nil {
				t.Fatalf("inner Walk() error = %v", err)
			}
			if uid != 10040 || mah != 1.5 {
				t.Errorf("inner = %d, %v", uid, mah)
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Walk() error = %v", err)
	}

	want := []seen{
		{1, protowire.VarintType},
		{12, protowire.BytesType},
		{3, protowire.VarintType},
		{17, protowire.Fixed64Type},
		{5, protowire.BytesType},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("fields mismatch (-want +got):\n%s", diff)
	}
}

func TestWalkTruncated(t *testing.T) {
	b := (&Builder{}).String(1, "hello").Bytes()
	if err := Walk(b[:len(b)-2], func(Field) error { return nil }); err == nil {
		t.Errorf("Walk() on truncated input should fail")
	}
}

func TestWalkEmpty(t *testing.T) {
	calls := 0
	if err := Walk(nil, func(Field) error { calls++; return nil }); err != nil {
		t.Fatalf("Walk(nil) error = %v", err)
	}
	if calls != 0 {
		t.Errorf("Walk(nil) called fn %d times", calls)
	}
}
