package util

type BasicResponse struct {
	Status  string      `json:"status"`
	Code    int         `json:"code"`
	Data    interface{} `json:"data,omitempty"`
	Reason  string      `json:"reason,omitempty"`
	Message string      `json:"message,omitempty"`
}

const (
	StatusSuccess = "success"
	StatusFail    = "fail"
)

const (
	SuccessCode = 200
	JsonError   = 400

	ValidationCode   = 4001
	NotFoundCode     = 4004
	ConflictCode     = 4009
	UnauthorizedCode = 4010
	StakeInvalidCode = 4021
	InternalCode     = 5000
	SettlementCode   = 5021
)

var codeMsg = map[int]string{
	JsonError: "An error occurred while converting to json",

	ValidationCode:   "Request validation failed",
	NotFoundCode:     "Record not found",
	ConflictCode:     "Operation conflicts with current state",
	UnauthorizedCode: "Unauthorized",
	StakeInvalidCode: "Stake verification failed",
	InternalCode:     "Internal error",
	SettlementCode:   "Settlement rail error",
}

func CreateSuccessResponse(_data interface{}) BasicResponse {
	return BasicResponse{
		Status: StatusSuccess,
		Data:   _data,
		Code:   SuccessCode,
	}
}

func CreateErrorResponse(code int, errMsg ...string) BasicResponse {
	var msg string
	if len(errMsg) == 0 {
		msg = codeMsg[code]
	} else {
		msg = errMsg[0]
	}
	return BasicResponse{
		Status:  StatusFail,
		Code:    code,
		Message: msg,
	}
}

// CreateReasonedResponse carries the stable machine-readable reason of a
// MarketError alongside the human message.
func CreateReasonedResponse(code int, reason, msg string) BasicResponse {
	resp := CreateErrorResponse(code, msg)
	resp.Reason = reason
	return resp
}
