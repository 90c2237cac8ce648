package controller

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"xhs-creator/logic"
	"xhs-creator/pkg/breaker"
)

/*
统一响应体：
{
	"code": 1000,       // 业务状态码
	"msg": "success",   // 提示信息
	"data": {}          // 数据
}
*/

type ResponseData struct {
	Code ResCode     `json:"code"`
	Msg  interface{} `json:"msg"`
	Data interface{} `json:"data,omitempty"`
}

func ResponseSuccess(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, &ResponseData{
		Code: CodeSuccess,
		Msg:  CodeSuccess.Msg(),
		Data: data,
	})
}

func ResponseError(c *gin.Context, code ResCode) {
	c.JSON(http.StatusOK, &ResponseData{
		Code: code,
		Msg:  code.Msg(),
	})
}

func ResponseErrorWithMsg(c *gin.Context, code ResCode, msg interface{}) {
	c.JSON(http.StatusOK, &ResponseData{
		Code: code,
		Msg:  msg,
	})
}

// handleBindError 参数绑定错误统一出口，validator 错误翻译后返回
func handleBindError(c *gin.Context, err error) {
	errs, ok := err.(validator.ValidationErrors)
	if !ok {
		ResponseError(c, CodeInvalidParams)
		return
	}
	ResponseErrorWithMsg(c, CodeInvalidParams, removeTopStruct(errs.Translate(trans)))
}

// handleLogicError 业务错误到响应码的映射
func handleLogicError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, logic.ErrTaskNotFound):
		ResponseError(c, CodeTaskNotExist)
	case errors.Is(err, logic.ErrImageNotFound):
		ResponseError(c, CodeImageNotExist)
	case errors.Is(err, logic.ErrInvalidTaskState):
		ResponseError(c, CodeInvalidTaskState)
	case errors.Is(err, logic.ErrInsufficientBalance):
		ResponseError(c, CodeInsufficientBalance)
	case errors.Is(err, breaker.ErrOpen):
		ResponseError(c, CodeServiceUnavailable)
	default:
		ResponseError(c, CodeServerBusy)
	}
}
