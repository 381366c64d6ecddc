package application

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/dlc-network/dlcd/internal/core/domain"
	"github.com/dlc-network/dlcd/internal/core/ports"
	log "github.com/sirupsen/logrus"
)

// contractUpdater turns a contract variant into the next one by driving
// the wallet and the crypto engine. It holds no state.
type contractUpdater struct {
	wallet ports.WalletService
	engine ports.CryptoEngine
}

func newContractUpdater(
	wallet ports.WalletService, engine ports.CryptoEngine,
) *contractUpdater {
	return &contractUpdater{wallet, engine}
}

// ToOfferedContract reserves the offerer coins and generates its keys.
func (u *contractUpdater) ToOfferedContract(
	ctx context.Context, c domain.InitialContract,
) (domain.OfferedContract, error) {
	inputs, params, err := u.preparePartyInputs(ctx, c.Id, c.LocalCollateral, c.FeeRate)
	if err != nil {
		return domain.OfferedContract{}, err
	}

	c.State = domain.StateOffered
	return domain.OfferedContract{
		InitialContract:  c,
		LocalPartyInputs: *inputs,
		PrivateParams:    params,
	}, nil
}

// ToAcceptContract reserves the accepter coins, builds the transaction set
// and signs the offerer CETs and refund with the accepter fund key.
func (u *contractUpdater) ToAcceptContract(
	ctx context.Context, c domain.OfferedContract,
) (domain.AcceptedContract, error) {
	if c.IsLocalParty {
		return domain.AcceptedContract{}, fmt.Errorf("offerer can't accept its own offer")
	}

	inputs, params, err := u.preparePartyInputs(ctx, c.Id, c.RemoteCollateral, c.FeeRate)
	if err != nil {
		return domain.AcceptedContract{}, err
	}

	c.PrivateParams = params
	accepted, err := u.buildTransactions(ctx, c, *inputs)
	if err != nil {
		u.releaseUtxos(ctx, c.Id, inputs.Utxos)
		return domain.AcceptedContract{}, err
	}

	fund := fundingOutput(accepted)
	cetSigs, err := u.engine.SignCets(accepted.LocalCetsHex, fund, params.FundPrivateKey)
	if err != nil {
		u.releaseUtxos(ctx, c.Id, inputs.Utxos)
		return domain.AcceptedContract{}, fmt.Errorf("failed to sign cets: %w", err)
	}
	refundSig, err := u.engine.SignRefund(accepted.RefundTxHex, fund, params.FundPrivateKey)
	if err != nil {
		u.releaseUtxos(ctx, c.Id, inputs.Utxos)
		return domain.AcceptedContract{}, fmt.Errorf("failed to sign refund: %w", err)
	}

	accepted.RemoteCetSignatures = cetSigs
	accepted.RefundRemoteSignature = refundSig
	return accepted, nil
}

// WithAcceptMessage rebuilds on the offerer side the transaction set the
// accepter signed, from the inputs carried by msg.
func (u *contractUpdater) WithAcceptMessage(
	ctx context.Context, c domain.OfferedContract, msg domain.AcceptMessage,
) (domain.AcceptedContract, error) {
	accepted, err := u.buildTransactions(ctx, c, msg.RemotePartyInputs)
	if err != nil {
		return domain.AcceptedContract{}, err
	}
	accepted.RemoteCetSignatures = msg.CetSignatures
	accepted.RefundRemoteSignature = msg.RefundSignature
	return accepted, nil
}

// VerifyContractSignatures checks the counterparty signatures held by c: the
// accepter ones for an accepted contract, the offerer ones for a signed
// contract.
func (u *contractUpdater) VerifyContractSignatures(c domain.Contract) bool {
	switch v := c.(type) {
	case domain.AcceptedContract:
		fund := fundingOutput(v)
		pubkey := v.RemotePartyInputs.FundPublicKey
		return u.engine.VerifyCetSignatures(
			v.LocalCetsHex, fund, v.RemoteCetSignatures, pubkey,
		) && u.engine.VerifyRefundSignature(
			v.RefundTxHex, fund, v.RefundRemoteSignature, pubkey,
		)
	case domain.SignedContract:
		fund := fundingOutput(v.AcceptedContract)
		pubkey := v.LocalPartyInputs.FundPublicKey
		return u.engine.VerifyCetSignatures(
			v.RemoteCetsHex, fund, v.LocalCetSignatures, pubkey,
		) && u.engine.VerifyRefundSignature(
			v.RefundTxHex, fund, v.RefundLocalSignature, pubkey,
		) && u.engine.VerifyFundingSignatures(
			v.FundTxHex, v.LocalPartyInputs.Utxos, v.FundTxSignatures,
		)
	default:
		return false
	}
}

// ToSignedContract produces the offerer signatures for funding inputs,
// refund and accepter CETs.
func (u *contractUpdater) ToSignedContract(
	_ context.Context, c domain.AcceptedContract,
) (domain.SignedContract, error) {
	if !c.IsLocalParty || c.PrivateParams == nil {
		return domain.SignedContract{}, fmt.Errorf("only the offerer signs an accepted contract")
	}
	params := c.PrivateParams
	fund := fundingOutput(c)

	fundSigs, err := u.engine.SignFundingInputs(
		c.FundTxHex, c.LocalPartyInputs.Utxos, params.InputPrivateKeys,
	)
	if err != nil {
		return domain.SignedContract{}, fmt.Errorf("failed to sign funding inputs: %w", err)
	}
	refundSig, err := u.engine.SignRefund(c.RefundTxHex, fund, params.FundPrivateKey)
	if err != nil {
		return domain.SignedContract{}, fmt.Errorf("failed to sign refund: %w", err)
	}
	cetSigs, err := u.engine.SignCets(c.RemoteCetsHex, fund, params.FundPrivateKey)
	if err != nil {
		return domain.SignedContract{}, fmt.Errorf("failed to sign cets: %w", err)
	}
	utxoPubkeys, err := publicKeys(params.InputPrivateKeys)
	if err != nil {
		return domain.SignedContract{}, err
	}

	c.State = domain.StateSigned
	return domain.SignedContract{
		AcceptedContract:     c,
		LocalCetSignatures:   cetSigs,
		RefundLocalSignature: refundSig,
		FundTxSignatures:     fundSigs,
		UtxoPublicKeys:       utxoPubkeys,
	}, nil
}

// WithSignMessage records on the accepter side the offerer signatures.
func (u *contractUpdater) WithSignMessage(
	c domain.AcceptedContract, msg domain.SignMessage,
) domain.SignedContract {
	c.State = domain.StateSigned
	return domain.SignedContract{
		AcceptedContract:     c,
		LocalCetSignatures:   msg.CetSignatures,
		RefundLocalSignature: msg.RefundSignature,
		FundTxSignatures:     msg.FundingSignatures,
		UtxoPublicKeys:       msg.UtxoPublicKeys,
	}
}

// ToBroadcast co-signs the accepter inputs, assembles the funding tx and
// broadcasts it.
func (u *contractUpdater) ToBroadcast(
	ctx context.Context, c domain.SignedContract,
) (domain.BroadcastContract, error) {
	if c.IsLocalParty || c.PrivateParams == nil {
		return domain.BroadcastContract{}, fmt.Errorf("only the accepter broadcasts the funding tx")
	}

	ownSigs, err := u.engine.SignFundingInputs(
		c.FundTxHex, c.RemotePartyInputs.Utxos, c.PrivateParams.InputPrivateKeys,
	)
	if err != nil {
		return domain.BroadcastContract{}, fmt.Errorf("failed to sign funding inputs: %w", err)
	}

	utxos := make([]domain.Utxo, 0)
	utxos = append(utxos, c.LocalPartyInputs.Utxos...)
	utxos = append(utxos, c.RemotePartyInputs.Utxos...)
	sigs := make([]domain.FundingSignature, 0)
	sigs = append(sigs, c.FundTxSignatures...)
	sigs = append(sigs, ownSigs...)

	signedTx, err := u.engine.FinalizeFundingTx(c.FundTxHex, utxos, sigs)
	if err != nil {
		return domain.BroadcastContract{}, fmt.Errorf("failed to finalize funding tx: %w", err)
	}
	if _, err := u.wallet.BroadcastTransaction(ctx, signedTx); err != nil {
		return domain.BroadcastContract{}, fmt.Errorf("failed to broadcast funding tx: %w", err)
	}

	c.State = domain.StateBroadcast
	return domain.BroadcastContract{
		SignedContract:  c,
		SignedFundTxHex: signedTx,
	}, nil
}

func (u *contractUpdater) ToConfirmedContract(
	c domain.Contract,
) (domain.ConfirmedContract, error) {
	signed, ok := domain.SignedPart(c)
	if !ok {
		return domain.ConfirmedContract{}, fmt.Errorf("contract %s is not signed", c.GetId())
	}
	signed.State = domain.StateConfirmed
	return domain.ConfirmedContract{SignedContract: signed}, nil
}

// ToMatureContract verifies the attestation and resolves the CETs of both
// nodes paying out the attested outcome.
func (u *contractUpdater) ToMatureContract(
	c domain.ConfirmedContract, attestation domain.OracleAttestation,
) (domain.MatureContract, error) {
	if err := u.engine.VerifyAttestation(c.OracleInfo, attestation); err != nil {
		return domain.MatureContract{}, fmt.Errorf("invalid attestation: %w", err)
	}
	index, err := outcomeIndex(c.InitialContract, attestation)
	if err != nil {
		return domain.MatureContract{}, err
	}
	own, other := c.OwnCetsHex(), c.CounterPartyCetsHex()
	if index >= len(own) || index >= len(other) {
		return domain.MatureContract{}, fmt.Errorf("missing cet for outcome %d", index)
	}
	cet, err := u.engine.DecodeTransaction(own[index])
	if err != nil {
		return domain.MatureContract{}, fmt.Errorf("failed to decode cet: %w", err)
	}
	otherCet, err := u.engine.DecodeTransaction(other[index])
	if err != nil {
		return domain.MatureContract{}, fmt.Errorf("failed to decode cet: %w", err)
	}

	c.State = domain.StateMature
	return domain.MatureContract{
		ConfirmedContract: c,
		OutcomeValues:     attestation.Outcomes,
		OracleSignatures:  attestation.Signatures,
		FinalOutcome:      c.Outcomes[index],
		FinalCetIndex:     index,
		FinalCetId:        cet.Txid,
		CounterPartyCetId: otherCet.Txid,
	}, nil
}

// ToUnilateralClosed co-signs and broadcasts the attested CET of this node,
// then claims the payout it locks to the oracle attestation. Both steps are
// skipped when their tx is already known, so a failed close can be retried.
func (u *contractUpdater) ToUnilateralClosed(
	ctx context.Context, c domain.MatureContract,
) (domain.ClosedContract, error) {
	i := c.FinalCetIndex
	cets, counterPartySigs := c.OwnCetsHex(), c.CounterPartyCetSignatures()
	if i >= len(cets) || i >= len(counterPartySigs) {
		return domain.ClosedContract{}, fmt.Errorf("missing signatures for cet %d", i)
	}
	if c.PrivateParams == nil {
		return domain.ClosedContract{}, fmt.Errorf("missing private params")
	}
	fund := fundingOutput(c.AcceptedContract)

	if _, err := u.wallet.GetTransaction(ctx, c.FinalCetId); err != nil {
		if !errors.Is(err, ports.ErrTransactionNotFound) {
			return domain.ClosedContract{}, fmt.Errorf("failed to get cet: %w", err)
		}
		ownSigs, err := u.engine.SignCets(
			[]string{cets[i]}, fund, c.PrivateParams.FundPrivateKey,
		)
		if err != nil {
			return domain.ClosedContract{}, fmt.Errorf("failed to sign cet: %w", err)
		}
		localSig, remoteSig := ownSigs[0], counterPartySigs[i]
		if !c.IsLocalParty {
			localSig, remoteSig = remoteSig, localSig
		}
		cet, err := u.engine.FinalizeCet(cets[i], fund, localSig, remoteSig)
		if err != nil {
			return domain.ClosedContract{}, fmt.Errorf("failed to finalize cet: %w", err)
		}
		if _, err := u.wallet.BroadcastTransaction(ctx, cet); err != nil {
			return domain.ClosedContract{}, fmt.Errorf("failed to broadcast cet: %w", err)
		}
	}

	claimTxId, err := u.claimCetOutput(ctx, c)
	if err != nil {
		return domain.ClosedContract{}, err
	}
	closed, err := u.toClosedContract(ctx, c, c.FinalCetId, false)
	if err != nil {
		return domain.ClosedContract{}, err
	}
	closed.ClaimTxId = claimTxId
	return closed, nil
}

// claimCetOutput spends the own payout of the published CET with the key
// tweaked by the oracle signatures. It returns an empty txid when the CET
// pays nothing to this node.
func (u *contractUpdater) claimCetOutput(
	ctx context.Context, c domain.MatureContract,
) (string, error) {
	payout := c.OwnPayout(c.FinalOutcome)
	if payout < domain.DustLimit {
		return "", nil
	}
	if payout < domain.DustLimit+domain.CetClaimFee(c.FeeRate) {
		log.WithField("contract", c.Id).Warnf(
			"cet payout of %d sats does not cover the claim fee, leaving it locked", payout,
		)
		return "", nil
	}
	claim, err := u.engine.ClaimCetOutput(ports.CetClaim{
		CetHex:            c.OwnCetsHex()[c.FinalCetIndex],
		OracleInfo:        c.OracleInfo,
		Outcome:           c.FinalOutcome,
		OracleSignatures:  c.OracleSignatures,
		SweepPrivateKey:   c.PrivateParams.SweepPrivateKey,
		FallbackPublicKey: c.CounterPartyInputs().SweepPublicKey,
		Address:           c.OwnInputs().FinalAddress,
		FeeRate:           c.FeeRate,
	})
	if err != nil {
		return "", fmt.Errorf("failed to claim cet output: %w", err)
	}
	decoded, err := u.engine.DecodeTransaction(claim)
	if err != nil {
		return "", fmt.Errorf("failed to decode claim tx: %w", err)
	}
	if _, err := u.wallet.GetTransaction(ctx, decoded.Txid); err == nil {
		return decoded.Txid, nil
	}
	if _, err := u.wallet.BroadcastTransaction(ctx, claim); err != nil {
		return "", fmt.Errorf("failed to broadcast claim tx: %w", err)
	}
	return decoded.Txid, nil
}

// ToClosedByOther records the CET broadcast by the counterparty.
func (u *contractUpdater) ToClosedByOther(
	ctx context.Context, c domain.MatureContract,
) (domain.ClosedContract, error) {
	if err := u.wallet.ImportPublicKey(ctx, c.OwnInputs().SweepPublicKey); err != nil {
		log.WithError(err).WithField("contract", c.Id).Warn("failed to import sweep pubkey")
	}
	return u.toClosedContract(ctx, c, c.CounterPartyCetId, true)
}

// ToRefundedContract finalizes and broadcasts the refund tx.
func (u *contractUpdater) ToRefundedContract(
	ctx context.Context, c domain.ConfirmedContract,
) (domain.RefundedContract, error) {
	refund, err := u.engine.FinalizeRefund(
		c.RefundTxHex, fundingOutput(c.AcceptedContract),
		c.RefundLocalSignature, c.RefundRemoteSignature,
	)
	if err != nil {
		return domain.RefundedContract{}, fmt.Errorf("failed to finalize refund: %w", err)
	}
	txid, err := u.wallet.BroadcastTransaction(ctx, refund)
	if err != nil {
		return domain.RefundedContract{}, fmt.Errorf("failed to broadcast refund: %w", err)
	}
	return u.toRefunded(ctx, c, txid, false), nil
}

func (u *contractUpdater) ToRefundedByOther(
	ctx context.Context, c domain.ConfirmedContract, txid string,
) domain.RefundedContract {
	return u.toRefunded(ctx, c, txid, true)
}

// ToRejectedContract releases the coins reserved by this node.
func (u *contractUpdater) ToRejectedContract(
	ctx context.Context, c domain.Contract, reason string,
) (domain.RejectedContract, error) {
	offered, ok := domain.OfferedPart(c)
	if !ok {
		return domain.RejectedContract{}, fmt.Errorf("contract %s was never offered", c.GetId())
	}
	u.releaseUtxos(ctx, c.GetId(), ownUtxos(c))

	offered.State = domain.StateRejected
	return domain.RejectedContract{OfferedContract: offered, Reason: reason}, nil
}

// ToFailedContract releases the coins reserved by this node, if any.
func (u *contractUpdater) ToFailedContract(
	ctx context.Context, c domain.Contract, reason string,
) domain.FailedContract {
	offered, ok := domain.OfferedPart(c)
	if !ok {
		offered = domain.OfferedContract{InitialContract: c.Initial()}
	}
	u.releaseUtxos(ctx, c.GetId(), ownUtxos(c))

	offered.State = domain.StateFailed
	return domain.FailedContract{OfferedContract: offered, Reason: reason}
}

// RollbackAccept brings an accepted contract back to the offer received,
// releasing the accepter coins and keys.
func (u *contractUpdater) RollbackAccept(
	ctx context.Context, c domain.AcceptedContract,
) domain.OfferedContract {
	u.releaseUtxos(ctx, c.Id, ownUtxos(c))

	offered := c.OfferedContract
	offered.State = domain.StateOffered
	offered.PrivateParams = nil
	return offered
}

func (u *contractUpdater) preparePartyInputs(
	ctx context.Context, contractId string, collateral, feeRate uint64,
) (*domain.PartyInputs, *domain.PrivateParams, error) {
	utxos, err := u.wallet.SelectUtxos(ctx, collateral, feeRate)
	if err != nil {
		return nil, nil, err
	}

	inputs, params, err := u.newPartyKeys(ctx, utxos)
	if err != nil {
		u.releaseUtxos(ctx, contractId, utxos)
		return nil, nil, err
	}
	return inputs, params, nil
}

func (u *contractUpdater) newPartyKeys(
	ctx context.Context, utxos []domain.Utxo,
) (*domain.PartyInputs, *domain.PrivateParams, error) {
	fundKey, err := u.wallet.GetNewPrivateKey(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get fund key: %w", err)
	}
	sweepKey, err := u.wallet.GetNewPrivateKey(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get sweep key: %w", err)
	}

	inputKeys := make([]string, 0, len(utxos))
	for _, utxo := range utxos {
		key, err := u.wallet.DumpPrivKey(ctx, utxo.Address)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to dump key of %s: %w", utxo.Address, err)
		}
		inputKeys = append(inputKeys, hex.EncodeToString(key.Serialize()))
	}

	changeAddress, err := u.wallet.GetNewAddress(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get change address: %w", err)
	}
	sweepPubkey := hex.EncodeToString(sweepKey.PubKey().SerializeCompressed())
	finalAddress, err := u.engine.PayoutAddress(sweepPubkey)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to derive final address: %w", err)
	}

	return &domain.PartyInputs{
			FundPublicKey:  hex.EncodeToString(fundKey.PubKey().SerializeCompressed()),
			SweepPublicKey: sweepPubkey,
			ChangeAddress:  changeAddress,
			FinalAddress:   finalAddress,
			Utxos:          utxos,
		}, &domain.PrivateParams{
			FundPrivateKey:   hex.EncodeToString(fundKey.Serialize()),
			SweepPrivateKey:  hex.EncodeToString(sweepKey.Serialize()),
			InputPrivateKeys: inputKeys,
		}, nil
}

func (u *contractUpdater) buildTransactions(
	ctx context.Context, c domain.OfferedContract, remoteInputs domain.PartyInputs,
) (domain.AcceptedContract, error) {
	txs, err := u.engine.CreateDlcTransactions(ports.DlcParams{
		LocalInputs:      c.LocalPartyInputs,
		RemoteInputs:     remoteInputs,
		LocalCollateral:  c.LocalCollateral,
		RemoteCollateral: c.RemoteCollateral,
		FeeRate:          c.FeeRate,
		Outcomes:         c.Outcomes,
		OracleInfo:       c.OracleInfo,
		MaturityTime:     c.MaturityTime,
		RefundLocktime:   c.RefundLocktime,
	})
	if err != nil {
		return domain.AcceptedContract{}, fmt.Errorf("failed to create dlc transactions: %w", err)
	}
	if err := u.wallet.ImportAddress(ctx, txs.FundAddress); err != nil {
		return domain.AcceptedContract{}, fmt.Errorf("failed to import fund address: %w", err)
	}

	c.State = domain.StateAccepted
	return domain.AcceptedContract{
		OfferedContract:   c,
		RemotePartyInputs: remoteInputs,
		FundTxHex:         txs.FundTxHex,
		FundTxId:          txs.FundTxId,
		FundOutputIndex:   txs.FundOutputIndex,
		FundOutputValue:   txs.FundOutputValue,
		FundAddress:       txs.FundAddress,
		RefundTxHex:       txs.RefundTxHex,
		LocalCetsHex:      txs.LocalCetsHex,
		RemoteCetsHex:     txs.RemoteCetsHex,
	}, nil
}

// toClosedContract applies the dust policy: CETs carry no output below
// dust, so that side gets nothing.
func (u *contractUpdater) toClosedContract(
	ctx context.Context, c domain.MatureContract, txid string, closedByOther bool,
) (domain.ClosedContract, error) {
	localPayout := c.FinalOutcome.LocalPayout
	if localPayout < domain.DustLimit {
		localPayout = 0
	}
	remotePayout := c.FinalOutcome.RemotePayout
	if remotePayout < domain.DustLimit {
		remotePayout = 0
	}

	ownPayout := remotePayout
	if c.IsLocalParty {
		ownPayout = localPayout
	}
	if ownPayout > 0 {
		address := c.OwnInputs().FinalAddress
		if err := u.wallet.ImportAddress(ctx, address); err != nil {
			log.WithError(err).WithField("contract", c.Id).Warn("failed to import final address")
		}
	}

	c.State = domain.StateClosed
	return domain.ClosedContract{
		MatureContract: c,
		ClosingTxId:    txid,
		ClosedByOther:  closedByOther,
		LocalPayout:    localPayout,
		RemotePayout:   remotePayout,
	}, nil
}

func (u *contractUpdater) toRefunded(
	ctx context.Context, c domain.ConfirmedContract, txid string, byOther bool,
) domain.RefundedContract {
	address := c.OwnInputs().FinalAddress
	if err := u.wallet.ImportAddress(ctx, address); err != nil {
		log.WithError(err).WithField("contract", c.Id).Warn("failed to import final address")
	}

	c.State = domain.StateRefunded
	return domain.RefundedContract{
		ConfirmedContract: c,
		RefundTxId:        txid,
		RefundedByOther:   byOther,
	}
}

// releaseUtxos is the one place where reserved coins go back to the wallet.
func (u *contractUpdater) releaseUtxos(
	ctx context.Context, contractId string, utxos []domain.Utxo,
) {
	if len(utxos) <= 0 {
		return
	}
	if err := u.wallet.UnlockUtxos(ctx, utxos); err != nil {
		log.WithError(err).WithField("contract", contractId).Warn("failed to release coins")
		return
	}
	log.WithField("contract", contractId).Debugf("released %d coins", len(utxos))
}

func fundingOutput(c domain.AcceptedContract) ports.FundingOutput {
	return ports.FundingOutput{
		LocalFundPublicKey:  c.LocalPartyInputs.FundPublicKey,
		RemoteFundPublicKey: c.RemotePartyInputs.FundPublicKey,
		Value:               c.FundOutputValue,
	}
}

// ownUtxos returns the coins this node reserved for c.
func ownUtxos(c domain.Contract) []domain.Utxo {
	if accepted, ok := domain.AcceptedPart(c); ok {
		return accepted.OwnInputs().Utxos
	}
	offered, ok := domain.OfferedPart(c)
	if !ok || !offered.IsLocalParty {
		return nil
	}
	return offered.LocalPartyInputs.Utxos
}

func outcomeIndex(
	c domain.InitialContract, attestation domain.OracleAttestation,
) (int, error) {
	if c.OracleInfo.IsDigitDecomposed() {
		digits, err := attestation.Digits()
		if err != nil {
			return -1, err
		}
		trie, err := domain.NewOutcomeTrie(c)
		if err != nil {
			return -1, err
		}
		index, err := trie.Lookup(digits)
		if err != nil {
			return -1, fmt.Errorf("no outcome covers attested value: %w", err)
		}
		return index, nil
	}

	if len(attestation.Outcomes) != 1 {
		return -1, fmt.Errorf("expected 1 attested outcome, got %d", len(attestation.Outcomes))
	}
	for i, o := range c.Outcomes {
		if o.Message == attestation.Outcomes[0] {
			return i, nil
		}
	}
	return -1, fmt.Errorf("attested outcome %s is not part of the contract", attestation.Outcomes[0])
}

func publicKeys(privkeys []string) ([]string, error) {
	pubkeys := make([]string, 0, len(privkeys))
	for _, k := range privkeys {
		buf, err := hex.DecodeString(k)
		if err != nil {
			return nil, fmt.Errorf("invalid private key: %w", err)
		}
		key, _ := btcec.PrivKeyFromBytes(buf)
		pubkeys = append(pubkeys, hex.EncodeToString(key.PubKey().SerializeCompressed()))
	}
	return pubkeys, nil
}
