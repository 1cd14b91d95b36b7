package frame

// MeshSize is the number of points in a refined face mesh (468 + 10 iris).
const MeshSize = 478

// Face mesh landmark indices used by the pipeline. Left and right are as seen
// in the image, so MeshLeftEye* is the subject's right eye.
const (
	MeshNoseTip       = 1
	MeshChin          = 152
	MeshLeftEyeOuter  = 33
	MeshRightEyeOuter = 263
	MeshMouthLeft     = 61
	MeshMouthRight    = 291

	MeshLeftEyeLidTop     = 159
	MeshLeftEyeLidBottom  = 145
	MeshLeftIrisCenter    = 468
	MeshRightEyeLidTop    = 386
	MeshRightEyeLidBottom = 374
	MeshRightIrisCenter   = 473
)
