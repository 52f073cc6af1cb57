package ir

// Resource types understood by the backends.
const (
	TypeSecurityGroup    = "aws:EC2.SecurityGroup"
	TypeInstance         = "aws:EC2.Instance"
	TypeBucket           = "aws:S3.Bucket"
	TypeSecret           = "aws:SecretsManager.Secret"
	TypeRole             = "aws:IAM.Role"
	TypeInstanceProfile  = "aws:IAM.InstanceProfile"
	TypeDBSubnetGroup    = "aws:RDS.DBSubnetGroup"
	TypeDBInstance       = "aws:RDS.Instance"
	TypeLoadBalancer     = "aws:ELBv2.LoadBalancer"
	TypeTargetGroup      = "aws:ELBv2.TargetGroup"
	TypeTargetAttachment = "aws:ELBv2.TargetAttachment"
	TypeListener         = "aws:ELBv2.Listener"
)
