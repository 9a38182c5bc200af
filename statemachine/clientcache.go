// Copyright 2024 The Erigon Authors
// This file is part of Erigon.
//
// Erigon is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// Erigon is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with Erigon. If not, see <http://www.gnu.org/licenses/>.

package statemachine

import "github.com/erigontech/metasm/kv"

// getClientLastResp looks up the last (serial, response) recorded for
// client. The original Rust state machine returns a "seen" tuple even for
// clients it has never observed; this reimplementation preserves that
// surface in clientLastResp (serial 0, AppliedState.None) but also returns
// everSeen so Go callers aren't forced to guess.
func getClientLastResp(tx kv.RawTx, ks *keyspaces, client string) (resp ClientLastResp, everSeen bool, err error) {
	v, ok, err := ks.clientLastResps.Get(tx, client)
	if err != nil {
		return ClientLastResp{}, false, err
	}
	if !ok {
		return ClientLastResp{ReqSerial: 0, Response: NoneState()}, false, nil
	}
	return v, true, nil
}

func putClientLastResp(tx kv.RawTx, ks *keyspaces, client string, serial uint64, resp AppliedState) error {
	return ks.clientLastResps.Put(tx, client, ClientLastResp{ReqSerial: serial, Response: resp})
}
