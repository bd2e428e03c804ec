package security

import (
	"bytes"
	"encoding/binary"
)

// EPUB DRM namespaces recognised in META-INF/encryption.xml. Detection is a
// byte-level substring scan, not a full XML parse: DRM must short-circuit
// before any content document is touched, so it cannot depend on the same
// depth-bounded parser it is meant to gate.
var epubDRMNamespaces = []struct {
	needle  []byte
	drmType string
}{
	{[]byte("http://ns.adobe.com/adept"), "adobe"},
	{[]byte("apple.com/FairPlay"), "apple"},
	{[]byte("urn:uuid:1203B3D8-3B00-4A20-9E4A-3B1D7BC9E2A0"), "apple"}, // Apple FairPlay algorithm URN, as seen in iBooks encryption.xml
}

// CheckEPUBEncryption inspects the raw bytes of META-INF/encryption.xml (if
// present) and returns a DrmProtected error naming the vendor when a known
// DRM namespace is found. A nil, nil return means the file does not exist
// or does not contain a recognised DRM marker (some EPUBs legitimately ship
// font obfuscation under the IDPF algorithm, which is not DRM and is not
// flagged here).
func CheckEPUBEncryption(data []byte) error {
	if len(data) == 0 {
		return nil
	}
	for _, ns := range epubDRMNamespaces {
		if bytes.Contains(data, ns.needle) {
			return ErrDrmProtected("epub", ns.drmType)
		}
	}
	return nil
}

// CheckMOBIHeader inspects the PDB header of a MOBI/AZW file for the DRM
// flag at offset 0x0C (the two-byte "EncryptionType" field in the PalmDOC
// header immediately following the 78-byte PDB record-zero preamble is not
// what this checks — per spec.md this checks the raw PDB file-attribute
// word at offset 0x0C, which devices and conversion tools treat as the
// practical DRM short-circuit point for the whole family).
func CheckMOBIHeader(data []byte) error {
	const drmOffset = 0x0C
	if len(data) < drmOffset+2 {
		return nil
	}
	flags := binary.BigEndian.Uint16(data[drmOffset : drmOffset+2])
	const pdbAttrDRM = 0x0010
	if flags&pdbAttrDRM != 0 {
		return ErrDrmProtected("mobi", "pdb")
	}
	return nil
}
