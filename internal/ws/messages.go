package ws

import (
	"encoding/json"

	"sousvide_simulator/internal/device"
	"sousvide_simulator/internal/models"
)

// Wire message names, matching the real cloud API.
const (
	CmdStart         = "CMD_APC_START"
	CmdStop          = "CMD_APC_STOP"
	CmdSetTargetTemp = "CMD_APC_SET_TARGET_TEMP"
	CmdSetTimer      = "CMD_APC_SET_TIMER"

	EventState    = "EVENT_APC_STATE"
	EventWifiList = "EVENT_APC_WIFI_LIST"

	MsgResponse = "RESPONSE"
)

// unknownRequestID addresses error responses for messages whose requestId
// could not be recovered.
const unknownRequestID = "unknown"

// commandKind is the closed set of commands the dispatcher understands.
// Parsing to an enum keeps the dispatch switch exhaustive instead of a
// string-keyed handler registry.
type commandKind int

const (
	kindUnknown commandKind = iota
	kindStart
	kindStop
	kindSetTargetTemp
	kindSetTimer
)

func parseCommandKind(name string) commandKind {
	switch name {
	case CmdStart:
		return kindStart
	case CmdStop:
		return kindStop
	case CmdSetTargetTemp:
		return kindSetTargetTemp
	case CmdSetTimer:
		return kindSetTimer
	}
	return kindUnknown
}

// envelope is the framing every client command carries.
type envelope struct {
	Command   string          `json:"command"`
	RequestID string          `json:"requestId"`
	Payload   json.RawMessage `json:"payload"`
}

// Command payloads. cookerId is accepted and ignored; the simulator models
// exactly one device.
type startPayload struct {
	CookerID          string  `json:"cookerId"`
	TargetTemperature float64 `json:"targetTemperature"`
	Unit              string  `json:"unit"`
	Timer             int     `json:"timer"`
}

type setTargetTempPayload struct {
	CookerID          string  `json:"cookerId"`
	TargetTemperature float64 `json:"targetTemperature"`
	Unit              string  `json:"unit"`
}

type setTimerPayload struct {
	CookerID string `json:"cookerId"`
	Timer    int    `json:"timer"`
}

type responsePayload struct {
	Status  string `json:"status"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
}

type responseMessage struct {
	Command   string          `json:"command"`
	RequestID string          `json:"requestId"`
	Payload   responsePayload `json:"payload"`
}

func buildOKResponse(requestID string) responseMessage {
	return responseMessage{
		Command:   MsgResponse,
		RequestID: requestID,
		Payload:   responsePayload{Status: "ok"},
	}
}

func buildErrorResponse(requestID, code, message string) responseMessage {
	return responseMessage{
		Command:   MsgResponse,
		RequestID: requestID,
		Payload:   responsePayload{Status: "error", Code: code, Message: message},
	}
}

// commandErrorResponse maps a device operation failure to a wire response.
func commandErrorResponse(requestID string, err error) responseMessage {
	if cmdErr, ok := err.(*device.CommandError); ok {
		return buildErrorResponse(requestID, cmdErr.Code, cmdErr.Message)
	}
	return buildErrorResponse(requestID, device.CodeInvalidPayload, err.Error())
}

// eventMessage is a server-initiated push. Events carry their own generated
// requestId; nothing correlates with it, but real clients expect the field.
type eventMessage struct {
	Command   string `json:"command"`
	RequestID string `json:"requestId"`
	Payload   any    `json:"payload"`
}

func buildStateEvent(state models.CookerState) eventMessage {
	return eventMessage{
		Command:   EventState,
		RequestID: models.GenerateRequestID(),
		Payload:   state.EventPayload(),
	}
}

// deviceListEntry is one device in the discovery message. The simulator
// always lists exactly one.
type deviceListEntry struct {
	CookerID string `json:"cookerId"`
	Type     string `json:"type"`
	Name     string `json:"name"`
	Online   bool   `json:"online"`
}

func buildDeviceListEvent(state models.CookerState) eventMessage {
	return eventMessage{
		Command:   EventWifiList,
		RequestID: models.GenerateRequestID(),
		Payload: []deviceListEntry{{
			CookerID: state.CookerID,
			Type:     state.DeviceType,
			Name:     "Simulated Precision Cooker",
			Online:   state.Online,
		}},
	}
}
