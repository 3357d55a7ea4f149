package enhanced

// Transaction is a single parsed transaction from the enhanced-transactions
// API. This is the upstream wire shape; the trade extractor turns it into
// domain records.
type Transaction struct {
	Description      string           `json:"description"`
	Type             string           `json:"type"`
	Source           string           `json:"source"`
	Fee              int64            `json:"fee"`
	FeePayer         string           `json:"feePayer"`
	Signature        string           `json:"signature"`
	Slot             uint64           `json:"slot"`
	Timestamp        int64            `json:"timestamp"`
	NativeTransfers  []NativeTransfer `json:"nativeTransfers"`
	TokenTransfers   []TokenTransfer  `json:"tokenTransfers"`
	TransactionError *TxError         `json:"transactionError"`
	Events           Events           `json:"events"`
}

// Failed reports whether the transaction errored on chain.
func (t *Transaction) Failed() bool {
	return t.TransactionError != nil
}

// IsSwapCandidate reports whether the transaction is worth handing to the
// trade parsers: either the upstream decoded an explicit swap event, or there
// are at least two token transfers (the minimum shape of a swap).
func (t *Transaction) IsSwapCandidate() bool {
	if t.Events.Swap != nil {
		return true
	}
	return len(t.TokenTransfers) >= 2
}

// NativeTransfer represents a native SOL transfer between accounts.
type NativeTransfer struct {
	FromUserAccount string `json:"fromUserAccount"`
	ToUserAccount   string `json:"toUserAccount"`
	Amount          int64  `json:"amount"` // lamports
}

// TokenTransfer represents a token transfer between accounts.
type TokenTransfer struct {
	FromUserAccount  string  `json:"fromUserAccount"`
	ToUserAccount    string  `json:"toUserAccount"`
	FromTokenAccount string  `json:"fromTokenAccount"`
	ToTokenAccount   string  `json:"toTokenAccount"`
	TokenAmount      float64 `json:"tokenAmount"` // decimal-adjusted
	Mint             string  `json:"mint"`
}

// RawTokenAmount holds a raw token amount with its decimals.
type RawTokenAmount struct {
	TokenAmount string `json:"tokenAmount"`
	Decimals    int    `json:"decimals"`
}

// TxError represents a transaction error.
type TxError struct {
	Error string `json:"error"`
}

// Events holds the structured event data decoded upstream.
type Events struct {
	Swap *SwapEvent `json:"swap"`
}

// SwapEvent represents a decoded swap event from the transaction.
type SwapEvent struct {
	NativeInput  *NativeAmount  `json:"nativeInput"`
	NativeOutput *NativeAmount  `json:"nativeOutput"`
	TokenInputs  []SwapToken    `json:"tokenInputs"`
	TokenOutputs []SwapToken    `json:"tokenOutputs"`
	TokenFees    []SwapToken    `json:"tokenFees"`
	NativeFees   []NativeAmount `json:"nativeFees"`
	InnerSwaps   []InnerSwap    `json:"innerSwaps"`
}

// NativeAmount represents a native SOL amount tied to an account.
type NativeAmount struct {
	Account string `json:"account"`
	Amount  string `json:"amount"` // lamports as string
}

// SwapToken represents a token leg of a swap event.
type SwapToken struct {
	UserAccount    string         `json:"userAccount"`
	TokenAccount   string         `json:"tokenAccount"`
	Mint           string         `json:"mint"`
	RawTokenAmount RawTokenAmount `json:"rawTokenAmount"`
}

// InnerSwap represents a single hop within a multi-hop swap.
type InnerSwap struct {
	TokenInputs  []TokenTransfer  `json:"tokenInputs"`
	TokenOutputs []TokenTransfer  `json:"tokenOutputs"`
	TokenFees    []TokenTransfer  `json:"tokenFees"`
	NativeFees   []NativeTransfer `json:"nativeFees"`
	ProgramInfo  *ProgramInfo     `json:"programInfo"`
}

// ProgramInfo identifies the DEX program used in an inner swap.
type ProgramInfo struct {
	Source          string `json:"source"`
	Account         string `json:"account"`
	ProgramName     string `json:"programName"`
	InstructionName string `json:"instructionName"`
}
