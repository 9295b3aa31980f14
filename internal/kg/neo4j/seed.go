package neo4j

var seedCategories = []Category{
	{Name: "access control", Description: "Identity, authentication and authorization controls"},
	{Name: "identity management", Description: "Account lifecycle, provisioning and directory services"},
	{Name: "data protection", Description: "Encryption, classification and data handling"},
	{Name: "encryption", Description: "Cryptographic controls at rest and in transit"},
	{Name: "incident response", Description: "Detection, triage and recovery from security incidents"},
	{Name: "business continuity", Description: "Disaster recovery and continuity planning"},
	{Name: "vendor management", Description: "Third-party risk and supplier oversight"},
	{Name: "aml screening", Description: "Anti-money-laundering and sanctions screening"},
	{Name: "transaction monitoring", Description: "Ongoing monitoring of financial transactions"},
	{Name: "audit logging", Description: "Event capture, retention and review"},
	{Name: "security awareness", Description: "Employee training and phishing resilience"},
	{Name: "network security", Description: "Segmentation, firewalls and perimeter controls"},
}

var seedRelations = []Relation{
	{From: "access control", To: "identity management", Overlap: 0.8},
	{From: "access control", To: "audit logging", Overlap: 0.4},
	{From: "data protection", To: "encryption", Overlap: 0.85},
	{From: "data protection", To: "access control", Overlap: 0.5},
	{From: "incident response", To: "business continuity", Overlap: 0.7},
	{From: "incident response", To: "audit logging", Overlap: 0.5},
	{From: "aml screening", To: "transaction monitoring", Overlap: 0.75},
	{From: "vendor management", To: "aml screening", Overlap: 0.3},
	{From: "network security", To: "access control", Overlap: 0.45},
	{From: "security awareness", To: "incident response", Overlap: 0.35},
}
