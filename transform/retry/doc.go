/*
Package retry 为单个后端调用提供有界重试与指数退避。

第 k 次失败后等待 InitialDelay * Multiplier^(k-1)（默认 1s、2s、4s…），
默认不加抖动、不设上限。风格无效与缺少凭证属于确定性误用，首次出现即原样返回；
其余错误重试至 MaxAttempts 用尽，返回最后一次尝试的错误。
等待通过 context 与定时器实现，可被调用方取消。
*/
package retry
