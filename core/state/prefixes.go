package state

var (
	poolConfigKeyBytes = []byte("pool/config")
	poolStateKeyBytes  = []byte("pool/state")
	poolLenderPrefix   = []byte("pool/lender/")
	poolLendersKey     = []byte("pool/lenders")
)

func poolLenderKey(addr []byte) []byte {
	key := make([]byte, len(poolLenderPrefix)+len(addr))
	copy(key, poolLenderPrefix)
	copy(key[len(poolLenderPrefix):], addr)
	return key
}
