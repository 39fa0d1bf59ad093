package types

// Block is a committed block header. The transactions themselves live in the
// mined-transaction table and reference the block by height.
type Block struct {
	Height uint32 `json:"height"`
	Hash   string `json:"hash"`
	Time   int64  `json:"time"`
}
