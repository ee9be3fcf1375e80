package common

import (
	"hash/fnv"
	"reflect"
)

// HasNil 检查params中是否有nil的参数
func HasNil(params ...interface{}) bool {
	for _, p := range params {
		if p == nil {
			return true
		}
		val := reflect.ValueOf(p)
		switch val.Kind() {
		case reflect.Ptr, reflect.Map, reflect.Slice, reflect.Chan, reflect.Func, reflect.Interface:
			if val.IsNil() {
				return true
			}
		}
	}
	return false
}

// Fnv32Hashcode 计算s的fnv32 hash值
func Fnv32Hashcode(s string) int {
	hasher := fnv.New32()
	hasher.Write([]byte(s))
	return int(hasher.Sum32() & 0x7fffffff)
}

// IsEmpty 检查字符串参数中是否有空串
func IsEmpty(params ...string) bool {
	for _, p := range params {
		if p == "" {
			return true
		}
	}
	return false
}
