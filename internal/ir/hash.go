package ir

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for content digests. The version suffix allows the
// algorithm to change without colliding with old digests.
const (
	DomainRecording = "pyrewind/recording/v1"
	DomainImage     = "pyrewind/image/v1"
)

// hashWithDomain computes SHA256(domain + 0x00 + data).
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// RecordingDigest is a content digest over a recording's build, symbols,
// initial image and steps. Two recordings of the same program with the same
// layout have the same digest.
func RecordingDigest(r *Recording) (string, error) {
	symbols := make(map[string]any, len(r.Symbols))
	for name, addr := range r.Symbols {
		symbols[name] = addr
	}
	head, err := MarshalCanonical(map[string]any{
		"build":      r.Build,
		"symbols":    symbols,
		"initial_pc": r.InitialPC,
		"exited":     r.Exited,
		"exit_code":  r.ExitCode,
		"steps":      int64(len(r.Steps)),
	})
	if err != nil {
		return "", fmt.Errorf("RecordingDigest: %w", err)
	}

	var body []byte
	body = append(body, head...)
	for _, seg := range r.Segments {
		body = binary.LittleEndian.AppendUint64(body, seg.Addr)
		body = binary.LittleEndian.AppendUint64(body, uint64(len(seg.Data)))
		body = append(body, seg.Data...)
	}
	for _, st := range r.Steps {
		body = binary.LittleEndian.AppendUint64(body, st.PC)
		body = binary.LittleEndian.AppendUint64(body, uint64(len(st.Writes)))
		for _, w := range st.Writes {
			body = binary.LittleEndian.AppendUint64(body, w.Addr)
			body = binary.LittleEndian.AppendUint64(body, uint64(len(w.New)))
			body = append(body, w.Old...)
			body = append(body, w.New...)
		}
	}
	return hashWithDomain(DomainRecording, body), nil
}

// ImageDigest hashes a memory image given as address-ordered pages.
func ImageDigest(pages []Segment) string {
	var body []byte
	for _, p := range pages {
		body = binary.LittleEndian.AppendUint64(body, p.Addr)
		body = append(body, p.Data...)
	}
	return hashWithDomain(DomainImage, body)
}

// MustRecordingDigest is like RecordingDigest but panics on error.
// Use only in tests or when inputs are known to be valid.
func MustRecordingDigest(r *Recording) string {
	d, err := RecordingDigest(r)
	if err != nil {
		panic(err)
	}
	return d
}
