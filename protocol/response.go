package protocol

import (
	"github.com/labstack/echo/v4"
	"github.com/stardustagi/ChatRelay/libs/errors"
)

// 返回定义
type BaseResponse struct {
	ErrCode int         `json:"errcode"`
	ErrMsg  string      `json:"errmsg,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

type BasePageResponse struct {
	ErrCode int         `json:"errcode"`
	ErrMsg  string      `json:"errmsg,omitempty"`
	Data    interface{} `json:"data,omitempty"`
	Page    PageResp    `json:"page"`
}

type PageResp struct {
	Page     int    `json:"page"`
	PageSize int    `json:"page_size"`
	Sort     string `json:"sort"`
	Total    int64  `json:"total"`
}

// ErrorResponse 所有错误响应共用的结构
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

func NewErrorResponse(err *errors.StackError) ErrorResponse {
	return ErrorResponse{Error: err.Msg(), Code: err.Code()}
}

// Response 成功时返回 data, 失败时按错误的 HTTP 状态返回 ErrorResponse
func Response(c echo.Context, err *errors.StackError, data any) error {
	if err == nil {
		if data != nil {
			return c.JSON(200, BaseResponse{
				ErrCode: 0,
				ErrMsg:  "ok",
				Data:    data,
			})
		}
		return c.JSON(200, BaseResponse{
			ErrCode: 0,
			ErrMsg:  "ok",
		})
	}
	return Error(c, err)
}

func Error(c echo.Context, err *errors.StackError) error {
	return c.JSON(err.Status(), NewErrorResponse(err))
}
