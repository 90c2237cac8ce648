package logic

import "errors"

// 业务错误分类：
// 校验错误由 controller 层直接拦截；余额类错误导致任务失败且不产生任何扣费；
// 服务商错误只影响单页（积分回滚、批次继续）；内部错误记日志后按页或按任务失败。
var (
	ErrTaskNotFound        = errors.New("任务不存在")
	ErrImageNotFound       = errors.New("图片不存在")
	ErrInvalidTaskState    = errors.New("任务当前状态不允许该操作")
	ErrInsufficientBalance = errors.New("积分余额不足")
	ErrEmptyOutline        = errors.New("大纲解析结果为空")
	ErrTaskCanceled        = errors.New("任务已取消")
)
