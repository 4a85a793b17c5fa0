// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package coordinator

import (
	"context"
	"fmt"
	"io"

	"github.com/btcsuite/mwmerge/mwtx"
	"github.com/btcsuite/mwmerge/utxo"
)

// LedgerBroadcaster accepts transactions into a local ledger and, if Out is
// set, writes each one to it as a hex line.
type LedgerBroadcaster struct {
	Ledger utxo.Ledger
	Out    io.Writer
}

// A compile time check to ensure LedgerBroadcaster implements Broadcaster.
var _ Broadcaster = (*LedgerBroadcaster)(nil)

// Broadcast applies tx to the ledger and writes it out.
func (b *LedgerBroadcaster) Broadcast(ctx context.Context, tx *mwtx.Transaction,
	label string) error {

	if err := b.Ledger.ApplyTransaction(ctx, tx); err != nil {
		return err
	}

	log.Infof("Accepted transaction %v (%v) with %d inputs, %d outputs, "+
		"%d kernels", tx.TxHash(), label, len(tx.Inputs),
		len(tx.Outputs), len(tx.Kernels))

	if b.Out == nil {
		return nil
	}

	txHex, err := tx.Hex()
	if err != nil {
		return err
	}

	_, err = fmt.Fprintln(b.Out, txHex)

	return err
}
