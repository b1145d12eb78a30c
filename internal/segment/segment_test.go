// =============================================================================
// 文件: internal/segment/segment_test.go
// 描述: 段编解码与完整性校验测试
// =============================================================================
package segment

import (
	"bytes"
	"testing"
)

func TestEncodeDecode(t *testing.T) {
	original := NewData(12345, 67890, 256, []byte("Hello, RDT!"))

	encoded := original.Encode()
	decoded, err := Decode(encoded)
	if err != nil {
		t.Fatalf("解码失败: %v", err)
	}

	if decoded.Seq != original.Seq {
		t.Errorf("Seq 不匹配: got %d, want %d", decoded.Seq, original.Seq)
	}
	if decoded.Ack != original.Ack {
		t.Errorf("Ack 不匹配: got %d, want %d", decoded.Ack, original.Ack)
	}
	if decoded.Window != original.Window {
		t.Errorf("Window 不匹配: got %d, want %d", decoded.Window, original.Window)
	}
	if !bytes.Equal(decoded.Payload, original.Payload) {
		t.Errorf("Payload 不匹配: got %v, want %v", decoded.Payload, original.Payload)
	}
	if decoded.IsCorrupt() {
		t.Error("完好的段不应判定为损坏")
	}
}

func TestEncodeDeterministic(t *testing.T) {
	s := NewData(1, 2, 3, []byte("same"))
	if !bytes.Equal(s.Encode(), s.Encode()) {
		t.Error("相同字段的编码应逐字节一致")
	}
}

func TestChecksumDetectsPayloadFlip(t *testing.T) {
	encoded := NewData(7, 0, 0, []byte("payload data")).Encode()

	// 翻转载荷中的一个字节
	encoded[HeaderSize+3] ^= 0xFF

	decoded, err := Decode(encoded)
	if err != nil {
		t.Fatalf("解码失败: %v", err)
	}
	if !decoded.IsCorrupt() {
		t.Error("载荷位翻转未被校验和捕获")
	}
}

func TestChecksumCoversEveryField(t *testing.T) {
	// 逐字段破坏: Seq(1..4), Ack(5..8), Window(9..10)
	for _, offset := range []int{1, 5, 9} {
		encoded := NewData(100, 200, 300, []byte("x")).Encode()
		encoded[offset] ^= 0xFF

		decoded, err := Decode(encoded)
		if err != nil {
			t.Fatalf("偏移 %d: 解码失败: %v", offset, err)
		}
		if !decoded.IsCorrupt() {
			t.Errorf("偏移 %d 的位翻转未被校验和捕获", offset)
		}
	}
}

func TestDecodeMalformed(t *testing.T) {
	cases := []struct {
		name string
		data []byte
	}{
		{"空输入", nil},
		{"太短", make([]byte, HeaderSize-1)},
		{"未知标志位", func() []byte {
			b := NewAck(0, 0).Encode()
			b[0] |= 0x80
			return b
		}()},
		{"SYN+FIN 组合", func() []byte {
			b := NewAck(0, 0).Encode()
			b[0] = FlagSYN | FlagFIN
			return b
		}()},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := Decode(tc.data); err == nil {
				t.Errorf("%s 应返回 ErrMalformed", tc.name)
			}
		})
	}
}

func TestKind(t *testing.T) {
	cases := []struct {
		seg  *Segment
		want Kind
	}{
		{NewData(0, 0, 0, []byte("d")), KindData},
		{NewAck(5, 0), KindAck},
		{NewSyn(1, 100), KindSyn},
		{NewSynAck(1, 2, 100), KindSynAck},
		{NewFin(9, 10), KindFinAck},
	}

	for _, tc := range cases {
		if got := tc.seg.Kind(); got != tc.want {
			t.Errorf("类型推导错误: got %v, want %v", got, tc.want)
		}
	}
}

func TestDecodeCopiesPayload(t *testing.T) {
	encoded := NewData(1, 0, 0, []byte("abc")).Encode()
	decoded, err := Decode(encoded)
	if err != nil {
		t.Fatalf("解码失败: %v", err)
	}

	encoded[HeaderSize] = 'z'
	if decoded.Payload[0] != 'a' {
		t.Error("解码后的载荷不应与输入缓冲共享内存")
	}
}

func BenchmarkEncode(b *testing.B) {
	seg := NewData(1000, 2000, 4096, bytes.Repeat([]byte("x"), 1024))
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		seg.Encode()
	}
}

func BenchmarkDecode(b *testing.B) {
	encoded := NewData(1000, 2000, 4096, bytes.Repeat([]byte("x"), 1024)).Encode()
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		if _, err := Decode(encoded); err != nil {
			b.Fatal(err)
		}
	}
}
