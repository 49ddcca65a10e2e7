// Package removebg 封装 Remove.bg 背景移除 API。
//
// 公网 URL 以 image_url 字段提交，data URI 与裸 base64 以 image_file_b64 提交。
// 输出固定为带透明通道的 PNG。凭证与其他后端一样在每次调用时读取。
package removebg
