package workflow

// Sample request and sales order approval states.
const (
	Draft    State = "draft"
	OnReview State = "on_review"
	Approved State = "approved"
	Revision State = "revision"
	Canceled State = "canceled"
)

// Production pipeline stages for work orders.
const (
	OrderProcessing     State = "order_processing"
	MaterialProcurement State = "material_procurement"
	Cutting             State = "cutting"
	SewingAssembly      State = "sewing_assembly"
	QualityControl      State = "quality_control"
	Finishing           State = "finishing"
	Packing             State = "packing"
	Dispatch            State = "dispatch"
)

// Approval governs sample requests and sales orders.
// draft -> approved and revision -> approved skip review.
var Approval = New("approval", Draft,
	[]State{Draft, OnReview, Approved, Revision, Canceled},
	map[State][]State{
		Draft:    {OnReview, Approved, Canceled},
		OnReview: {Approved, Revision, Canceled},
		Revision: {OnReview, Approved, Canceled},
	},
)

// Production governs work orders.
var Production = Linear("production",
	OrderProcessing,
	MaterialProcurement,
	Cutting,
	SewingAssembly,
	QualityControl,
	Finishing,
	Packing,
	Dispatch,
)
