package ir

// IntrinsicID identifies a platform built-in recognised by the analysis.
type IntrinsicID int

const (
	NotIntrinsic IntrinsicID = iota
	// OtherIntrinsic is an "llvm." declaration with no hidden-argument meaning.
	OtherIntrinsic

	WorkitemIDX
	WorkitemIDY
	WorkitemIDZ
	WorkgroupIDX
	WorkgroupIDY
	WorkgroupIDZ
	R600TidigY
	R600TidigZ
	R600TgidY
	R600TgidZ
	DispatchPtr
	QueuePtr
	DispatchID
	ImplicitArgPtr
	LDSKernelID
	IsShared
	IsPrivate
	Trap
)

var intrinsicNames = map[IntrinsicID]string{
	WorkitemIDX:    "llvm.amdgcn.workitem.id.x",
	WorkitemIDY:    "llvm.amdgcn.workitem.id.y",
	WorkitemIDZ:    "llvm.amdgcn.workitem.id.z",
	WorkgroupIDX:   "llvm.amdgcn.workgroup.id.x",
	WorkgroupIDY:   "llvm.amdgcn.workgroup.id.y",
	WorkgroupIDZ:   "llvm.amdgcn.workgroup.id.z",
	R600TidigY:     "llvm.r600.read.tidig.y",
	R600TidigZ:     "llvm.r600.read.tidig.z",
	R600TgidY:      "llvm.r600.read.tgid.y",
	R600TgidZ:      "llvm.r600.read.tgid.z",
	DispatchPtr:    "llvm.amdgcn.dispatch.ptr",
	QueuePtr:       "llvm.amdgcn.queue.ptr",
	DispatchID:     "llvm.amdgcn.dispatch.id",
	ImplicitArgPtr: "llvm.amdgcn.implicitarg.ptr",
	LDSKernelID:    "llvm.amdgcn.lds.kernel.id",
	IsShared:       "llvm.amdgcn.is.shared",
	IsPrivate:      "llvm.amdgcn.is.private",
	Trap:           "llvm.trap",
}

var intrinsicsByName = func() map[string]IntrinsicID {
	m := make(map[string]IntrinsicID, len(intrinsicNames))
	for id, name := range intrinsicNames {
		m[name] = id
	}
	return m
}()

// LookupIntrinsic maps an "llvm." function name to its ID. Unrecognised
// intrinsic names yield OtherIntrinsic.
func LookupIntrinsic(name string) IntrinsicID {
	if id, ok := intrinsicsByName[name]; ok {
		return id
	}
	return OtherIntrinsic
}

// Name returns the declaration name for id, or "" when id has none.
func (id IntrinsicID) Name() string {
	return intrinsicNames[id]
}

// String implements fmt.Stringer.
func (id IntrinsicID) String() string {
	switch id {
	case NotIntrinsic:
		return "not_intrinsic"
	case OtherIntrinsic:
		return "other_intrinsic"
	}
	return intrinsicNames[id]
}
