package controller

type ResCode int64

const (
	CodeSuccess ResCode = 1000 + iota
	CodeInvalidParams
	CodeTaskNotExist
	CodeImageNotExist
	CodeVersionNotExist
	CodeInvalidTaskState
	CodeInsufficientBalance
	CodeServiceUnavailable
	CodeServerBusy
)

var codeMsgMap = map[ResCode]string{
	CodeSuccess:             "success",
	CodeInvalidParams:       "请求参数错误",
	CodeTaskNotExist:        "任务不存在",
	CodeImageNotExist:       "图片不存在",
	CodeVersionNotExist:     "版本不存在",
	CodeInvalidTaskState:    "任务状态不允许该操作",
	CodeInsufficientBalance: "积分余额不足",
	CodeServiceUnavailable:  "生成服务暂时不可用，请稍后再试",
	CodeServerBusy:          "服务繁忙",
}

func (c ResCode) Msg() string {
	msg, ok := codeMsgMap[c]
	if !ok {
		msg = codeMsgMap[CodeServerBusy]
	}
	return msg
}
