package common

import (
	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// JSONStr 序列化为JSON字符串,主要用于日志输出,失败时返回空串
func JSONStr(v interface{}) string {
	b, err := json.Marshal(v)
	if err != nil {
		Warnf("marshal %T to json fail,err:%v", v, err)
		return ""
	}
	return string(b)
}
