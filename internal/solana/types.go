package solana

// SignatureInfo from getSignaturesForAddress.
type SignatureInfo struct {
	Signature string
	Slot      int64
	BlockTime *int64
	Err       interface{} // non-nil means the transaction failed on chain
}

// Failed reports whether the ledger marked this signature as failed.
func (s SignatureInfo) Failed() bool {
	return s.Err != nil
}

// SignaturesOpts defines optional pagination parameters for getSignaturesForAddress.
type SignaturesOpts struct {
	Before string // Start searching backwards from this signature
	Until  string // Search until this signature (exclusive)
	Limit  int    // Maximum number of signatures to return
}

// Transaction is an immutable record fetched from the ledger.
type Transaction struct {
	Signature string
	Slot      int64
	BlockTime int64 // Unix timestamp (seconds)
	Meta      *TransactionMeta
	Message   *TransactionMessage
}

// TransactionMeta contains execution metadata.
type TransactionMeta struct {
	Err               interface{}
	Fee               uint64
	LogMessages       []string
	PreBalances       []uint64 // lamports, indexed like Message.AccountKeys
	PostBalances      []uint64
	PreTokenBalances  []TokenBalance
	PostTokenBalances []TokenBalance
}

// TokenBalance is an SPL token account snapshot taken before or after execution.
type TokenBalance struct {
	AccountIndex int
	Mint         string
	Owner        string
	Amount       uint64 // raw units
}

// TransactionMessage contains the parsed transaction message.
type TransactionMessage struct {
	AccountKeys  []string
	Instructions []Instruction
}

// Instruction names a program and carries opaque data.
type Instruction struct {
	ProgramIDIndex int
	Accounts       []int
	Data           string // base58
}

// FeePayer returns the transaction's fee payer (first account key).
func (t *Transaction) FeePayer() string {
	if t.Message == nil || len(t.Message.AccountKeys) == 0 {
		return ""
	}
	return t.Message.AccountKeys[0]
}

// Logs returns the transaction's log messages, never nil.
func (t *Transaction) Logs() []string {
	if t.Meta == nil {
		return nil
	}
	return t.Meta.LogMessages
}

// InvokesProgram reports whether any instruction targets the given program.
func (t *Transaction) InvokesProgram(programID string) bool {
	if t.Message == nil {
		return false
	}
	for _, in := range t.Message.Instructions {
		if in.ProgramIDIndex >= 0 && in.ProgramIDIndex < len(t.Message.AccountKeys) &&
			t.Message.AccountKeys[in.ProgramIDIndex] == programID {
			return true
		}
	}
	return false
}
