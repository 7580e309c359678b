// Copyright (c) 2025 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package bridge

import (
	"github.com/modbusgw/bridge/framer/mbap"
	"github.com/modbusgw/bridge/modbus"
	"github.com/modbusgw/bridge/modbus/crc"
)

// mbapToRTURequest implements the client->device half of spec.md §4.4's
// translation: extract the PDU from the inbound MBAP frame (dropping the
// header), prepend the unit id, and append a CRC-16-Modbus.
func mbapToRTURequest(frame modbus.Frame) modbus.Frame {
	unitID := mbap.UnitID(frame)
	pdu := mbap.PDU(frame)

	out := make(modbus.Frame, 0, 1+len(pdu)+2)
	out = append(out, unitID)
	out = append(out, pdu...)

	var c crc.CRC
	c.Reset().PushBytes(out)
	v := c.Value()
	out = append(out, byte(v), byte(v>>8))
	return out
}

// rtuToMBAPResponse implements the device->client half: strip the
// unit id and trailing CRC from the RTU response, then re-wrap the PDU
// in an MBAP header carrying the original request's transaction id.
func rtuToMBAPResponse(rtuFrame modbus.Frame, txID uint16, unitID byte) modbus.Frame {
	pdu := rtuFrame[1 : len(rtuFrame)-2]
	return mbap.Encode(txID, unitID, pdu)
}
