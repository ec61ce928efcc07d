package core

// CID represents binary CID bytes.
type CID struct {
	Bytes []byte
}

// Ref references a cached object by its manifest CID.
type Ref struct {
	ManifestCID CID
}

// MemberKey identifies one payload file inside a named dataset,
// e.g. {Dataset: "Wenchuan", Member: "samples.wset"}.
type MemberKey struct {
	Dataset string
	Member  string
}
