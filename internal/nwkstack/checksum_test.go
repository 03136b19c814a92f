package nwkstack

import "testing"

func TestChecksumKnownVector(t *testing.T) {
	// RFC 1071's worked example.
	data := []byte{0x00, 0x01, 0xf2, 0x03, 0xf4, 0xf5, 0xf6, 0xf7}
	var c Checksum
	c.AddRange(data)
	if got, want := c.Result(), uint16(0x220d); got != want {
		t.Fatalf("Result() = 0x%04x, want 0x%04x", got, want)
	}
}

func TestChecksumValidatesOwnResult(t *testing.T) {
	data := []byte{0x45, 0x00, 0x00, 0x28, 0x1c, 0x46, 0x40, 0x00, 0x40, 0x06, 0x00, 0x00, 0x0a, 0x00, 0x00, 0x01, 0x0a, 0x00, 0x00, 0x02}
	var c Checksum
	c.AddRange(data)
	sum := c.Result()

	framed := append([]byte(nil), data...)
	framed[10] = byte(sum >> 8)
	framed[11] = byte(sum)

	var verify Checksum
	verify.AddRange(framed)
	if !verify.Valid() {
		t.Fatalf("checksum did not validate against its own framed result")
	}
}

func TestChecksumOddLength(t *testing.T) {
	var c Checksum
	c.AddRange([]byte{0xff})
	// An odd trailing byte is treated as the high byte of its pair.
	if got, want := c.Result(), ^uint16(0xff00); got != want {
		t.Fatalf("Result() = 0x%04x, want 0x%04x", got, want)
	}
}

func TestChecksumPseudoHeaderMatchesManualAdds(t *testing.T) {
	src := [4]byte{10, 0, 0, 1}
	dst := [4]byte{10, 0, 0, 2}

	var a Checksum
	a.AddPseudoHeader(src, dst, 6, 20)

	var b Checksum
	b.AddRange(src[:])
	b.AddRange(dst[:])
	b.AddU16(6)
	b.AddU16(20)

	if a.Result() != b.Result() {
		t.Fatalf("AddPseudoHeader diverged from manual AddRange/AddU16 sequence")
	}
}
