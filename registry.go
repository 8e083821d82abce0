package found

// Subspace prefixes. Conventional short prefixes, one per store kind, the
// way the engine's bucket registry assigns each logical table a distinct
// physical prefix so unrelated stores never collide in the same keyspace
// and a prefix range scan never has to care what else lives in the
// database. The stores themselves take their prefix from the caller (the
// prefix argument of each Make); nothing in this module reads these
// constants.
//
// A prefix is permanent once a store ships: removing or renumbering an
// entry here silently reinterprets every key already written under it.
const (
	SubspaceNStore     = "n"
	SubspaceVNStore    = "vn"
	SubspaceBStore     = "b"
	SubspaceBStoreRefs = "br"
	SubspaceEAVStore   = "eav"
	SubspacePStore     = "p"
)
