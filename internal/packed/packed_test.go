package packed

import (
	"bytes"
	"encoding/binary"
	"errors"
	"math"
	"testing"

	"cine-reader/internal/cineerr"
)

// oddRecord 故意把多字节字段放在奇数偏移
type oddRecord struct {
	Flag  bool
	Width uint16
	Count uint32
	Pos   int64
	Gain  float32
	Name  string
}

func (oddRecord) WireSize() int { return 27 }

func (r *oddRecord) DecodeFields(f Fields) {
	r.Flag = f.Bool8(0)
	r.Width = f.U16(1)
	r.Count = f.U32(3)
	r.Pos = f.I64(7)
	r.Gain = f.F32(15)
	r.Name = f.String(19, 8)
}

func makeOddRecord() []byte {
	buf := make([]byte, 27)
	buf[0] = 1
	binary.LittleEndian.PutUint16(buf[1:], 0x0301)
	binary.LittleEndian.PutUint32(buf[3:], 0xA1B2C3D4)
	binary.LittleEndian.PutUint64(buf[7:], uint64(0xFFFFFFFFFFFFFFFE)) // -2
	binary.LittleEndian.PutUint32(buf[15:], math.Float32bits(2.2))
	copy(buf[19:], "cam\x00junk")
	return buf
}

func TestDecode_UnalignedFields(t *testing.T) {
	t.Parallel()
	rec, err := Decode[oddRecord](makeOddRecord())
	if err != nil {
		t.Fatal(err)
	}
	if !rec.Flag {
		t.Error("Flag should be true")
	}
	if rec.Width != 0x0301 {
		t.Errorf("Width = %#x, want 0x301", rec.Width)
	}
	if rec.Count != 0xA1B2C3D4 {
		t.Errorf("Count = %#x, want 0xA1B2C3D4", rec.Count)
	}
	if rec.Pos != -2 {
		t.Errorf("Pos = %d, want -2", rec.Pos)
	}
	if rec.Gain != 2.2 {
		t.Errorf("Gain = %v, want 2.2", rec.Gain)
	}
	if rec.Name != "cam" {
		t.Errorf("Name = %q, want %q", rec.Name, "cam")
	}
}

func TestDecode_Truncated(t *testing.T) {
	t.Parallel()
	_, err := Decode[oddRecord](makeOddRecord()[:20])
	if !errors.Is(err, cineerr.ErrIO) {
		t.Fatalf("err = %v, want ErrIO", err)
	}
}

func TestDecode_SizeMismatch(t *testing.T) {
	t.Parallel()
	_, err := Decode[oddRecord](append(makeOddRecord(), 0))
	if err == nil {
		t.Fatal("expected size mismatch error")
	}
}

func TestReadAt(t *testing.T) {
	t.Parallel()
	data := append(bytes.Repeat([]byte{0xEE}, 5), makeOddRecord()...)
	r := bytes.NewReader(data)

	rec, err := ReadAt[oddRecord](r, 5)
	if err != nil {
		t.Fatal(err)
	}
	if rec.Count != 0xA1B2C3D4 {
		t.Errorf("Count = %#x", rec.Count)
	}

	if _, err := ReadAt[oddRecord](r, 10); !errors.Is(err, cineerr.ErrIO) {
		t.Errorf("short read err = %v, want ErrIO", err)
	}
}

func TestFields_Bytes_Copies(t *testing.T) {
	t.Parallel()
	src := []byte{1, 2, 3, 4}
	got := NewFields(src).Bytes(1, 2)
	src[1] = 9
	if got[0] != 2 || got[1] != 3 {
		t.Errorf("Bytes = %v, want [2 3]", got)
	}
}
