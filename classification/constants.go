package classification

const (
	InputHeight   = 168
	InputWidth    = 150
	InputChannels = 1
	PixelScale    = 255.0
)

// InputShape is the NHWC shape the classifier expects.
var InputShape = []int{1, InputHeight, InputWidth, InputChannels}

// DefaultLabels lists the classes in the order of the model's output vector.
var DefaultLabels = []string{"Glioma", "Meningioma", "No Tumor", "Pituitary"}
