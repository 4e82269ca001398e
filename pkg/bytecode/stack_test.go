package bytecode

import (
	"testing"

	"github.com/daimatz/setip/pkg/classfile"
)

func TestStackEffect(t *testing.T) {
	cf := classfile.New("A", "java/lang/Object")
	str := cf.AddString("s")
	cf.ConstantPool = append(cf.ConstantPool, &classfile.ConstantLong{Value: 1}, nil)
	long := len(cf.ConstantPool) - 2
	field := cf.AddFieldref("A", "d", "D")
	virt := cf.AddMethodref("A", "m", "(IJLjava/lang/String;)J")
	static := cf.AddMethodref("A", "s", "([I)V")
	nat := cf.AddNameAndType("run", "(I)Ljava/lang/Runnable;")
	cf.ConstantPool = append(cf.ConstantPool, &classfile.ConstantDynamic{Kind: classfile.TagInvokeDynamic, NameAndTypeIndex: nat})
	indy := len(cf.ConstantPool) - 1
	pool := cf.ConstantPool

	tests := []struct {
		name      string
		in        Instruction
		pop, push int
	}{
		{"iconst", Instruction{Opcode: OpIconst0}, 0, 1},
		{"lload_1", Instruction{Opcode: OpLload0 + 1}, 0, 2},
		{"wide dstore", Instruction{Opcode: OpDstore, Wide: true, Index: 300}, 2, 0},
		{"astore_2", Instruction{Opcode: OpAstore0 + 2}, 1, 0},
		{"ladd", Instruction{Opcode: OpLadd}, 4, 2},
		{"isub", Instruction{Opcode: OpIsub}, 2, 1},
		{"lshl", Instruction{Opcode: OpLshl}, 3, 2},
		{"lcmp", Instruction{Opcode: OpLcmp}, 4, 1},
		{"dup2_x1", Instruction{Opcode: OpDup2X1}, 3, 5},
		{"if_icmplt", Instruction{Opcode: OpIfIcmplt}, 2, 0},
		{"lreturn", Instruction{Opcode: OpLreturn}, 2, 0},
		{"ldc string", Instruction{Opcode: OpLdc, Index: int(str)}, 0, 1},
		{"ldc2_w long", Instruction{Opcode: OpLdc2W, Index: long}, 0, 2},
		{"getfield double", Instruction{Opcode: OpGetfield, Index: int(field)}, 1, 2},
		{"putstatic double", Instruction{Opcode: OpPutstatic, Index: int(field)}, 2, 0},
		{"invokevirtual", Instruction{Opcode: OpInvokevirtual, Index: int(virt)}, 5, 2},
		{"invokestatic", Instruction{Opcode: OpInvokestatic, Index: int(static)}, 1, 0},
		{"invokedynamic", Instruction{Opcode: OpInvokedynamic, Index: indy}, 1, 1},
		{"multianewarray", Instruction{Opcode: OpMultianewarray, Value: 3}, 3, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pop, push, err := StackEffect(tt.in, pool)
			if err != nil {
				t.Fatalf("StackEffect: %v", err)
			}
			if pop != tt.pop || push != tt.push {
				t.Errorf("got pop %d push %d, want %d %d", pop, push, tt.pop, tt.push)
			}
		})
	}
}

func TestStackEffectErrors(t *testing.T) {
	cf := classfile.New("A", "java/lang/Object")
	tests := []struct {
		name string
		in   Instruction
	}{
		{"ldc out of pool", Instruction{Opcode: OpLdc, Index: 99}},
		{"ldc index zero", Instruction{Opcode: OpLdc}},
		{"getfield on a class entry", Instruction{Opcode: OpGetfield, Index: int(cf.ThisClass)}},
		{"invalid opcode", Instruction{Opcode: 0xCB}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, _, err := StackEffect(tt.in, cf.ConstantPool); err == nil {
				t.Error("expected error")
			}
		})
	}
}
