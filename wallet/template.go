package wallet

// Declarative transaction templates (C7). Grounded on the teacher's
// pkg/config loading pattern (yaml.v3 unmarshal into a typed struct) applied
// to a different document: a list of instructions describing a transaction
// to build, rather than a wallet config. A template lets a caller (or a
// nano contract integration) describe "pay X to Y, then mint Z" as data
// instead of Go code.

import (
	"math/big"

	"gopkg.in/yaml.v3"
)

// TemplateInstructionType names one step of a template.
type TemplateInstructionType string

const (
	InstructionSend               TemplateInstructionType = "send"
	InstructionCreateToken        TemplateInstructionType = "create_token"
	InstructionMint               TemplateInstructionType = "mint"
	InstructionMelt               TemplateInstructionType = "melt"
	InstructionDelegateAuthority  TemplateInstructionType = "delegate_authority"
	InstructionDestroyAuthority   TemplateInstructionType = "destroy_authority"
	InstructionConsolidate        TemplateInstructionType = "consolidate"
)

// TemplateInstruction is one step of a declarative transaction template.
type TemplateInstruction struct {
	Type     TemplateInstructionType `yaml:"type"`
	Token    string                  `yaml:"token,omitempty"`
	Address  string                  `yaml:"address,omitempty"`
	Amount   *big.Int                `yaml:"amount,omitempty"`
	Mint     bool                    `yaml:"mint,omitempty"` // for delegate/destroy_authority: true=mint bit, false=melt bit
	KeepMine bool                    `yaml:"keep_mine,omitempty"`
	Count    int                     `yaml:"count,omitempty"` // destroy_authority: how many authority utxos to burn, default 1
}

// Template is an ordered list of instructions; ParseTemplate and
// InterpretTemplate operate on it.
type Template struct {
	Instructions []TemplateInstruction `yaml:"instructions"`
}

// ParseTemplate decodes a yaml-encoded template document.
func ParseTemplate(raw []byte) (*Template, error) {
	var t Template
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return nil, wrap(err, "parse template")
	}
	return &t, nil
}

// InterpretTemplate runs every instruction in order and merges their
// resulting inputs/outputs into a single UnsignedTx. Consecutive "send"
// instructions are batched into one BuildSend call (one selection pass,
// one change output); every other
// instruction performs its own utxo selection independently, so separate
// instructions drawing on the same token's balance may select the same
// utxos more than once.
func InterpretTemplate(storage Storage, params NetworkParams, t *Template) (*UnsignedTx, error) {
	merged := &UnsignedTx{}
	var pendingOutputs []OutputSpec
	var changeAddress string

	flushSend := func() error {
		if len(pendingOutputs) == 0 {
			return nil
		}
		tx, err := BuildSend(storage, params, pendingOutputs, changeAddress)
		if err != nil {
			return err
		}
		mergeInto(merged, tx)
		pendingOutputs = nil
		return nil
	}

	for _, instr := range t.Instructions {
		switch instr.Type {
		case InstructionSend:
			if changeAddress == "" {
				changeAddress = instr.Address
			}
			pendingOutputs = append(pendingOutputs, OutputSpec{Address: instr.Address, Value: instr.Amount, Token: tokenOrNative(instr.Token)})
			continue
		default:
			if err := flushSend(); err != nil {
				return nil, err
			}
		}

		var tx *UnsignedTx
		var err error
		switch instr.Type {
		case InstructionCreateToken:
			tx, err = BuildCreateToken(storage, params, instr.Token, instr.Address, instr.Amount)
		case InstructionMint:
			tx, err = BuildMint(storage, params, instr.Token, instr.Address, instr.Amount)
		case InstructionMelt:
			tx, err = BuildMelt(storage, params, instr.Token, instr.Address, instr.Amount)
		case InstructionDelegateAuthority:
			tx, err = BuildDelegateAuthority(storage, params, instr.Token, authorityBit(instr.Mint), instr.Address, instr.KeepMine)
		case InstructionDestroyAuthority:
			tx, err = BuildDestroyAuthority(storage, instr.Token, authorityBit(instr.Mint), instr.Count)
		case InstructionConsolidate:
			tx, err = BuildConsolidate(storage, params, tokenOrNative(instr.Token), instr.Address)
		default:
			return nil, ErrInvalidTransaction
		}
		if err != nil {
			return nil, err
		}
		mergeInto(merged, tx)
	}
	if err := flushSend(); err != nil {
		return nil, err
	}
	return merged, nil
}

func authorityBit(mint bool) uint8 {
	if mint {
		return AuthorityMint
	}
	return AuthorityMelt
}

func tokenOrNative(uid string) string {
	if uid == "" {
		return NativeTokenUID
	}
	return uid
}

// mergeInto folds src's inputs/outputs/token table into dst, remapping
// src's token-table-relative output indices so they refer into dst's table.
func mergeInto(dst, src *UnsignedTx) {
	remap := make(map[uint8]uint8, len(src.TokenTable))
	for i, uid := range src.TokenTable {
		srcIdx := uint8(i + 1)
		dstIdx, table := tokenIndexOf(dst.TokenTable, uid)
		dst.TokenTable = table
		remap[srcIdx] = dstIdx
	}
	dst.Inputs = append(dst.Inputs, src.Inputs...)
	for _, o := range src.Outputs {
		if o.TokenIndex != 0 {
			o.TokenIndex = remap[o.TokenIndex]
		}
		dst.Outputs = append(dst.Outputs, o)
	}
}
